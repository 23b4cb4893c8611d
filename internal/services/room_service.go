package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"roomlink/internal/httpclient"
	"roomlink/internal/models"
)

// API is the subset of the REST client the services need.
type API interface {
	Do(ctx context.Context, method, path string, in, out interface{}) error
	Send(ctx context.Context, method, path string, in interface{}) (*httpclient.Response, error)
}

type RoomService struct {
	api API
}

func NewRoomService(api API) *RoomService {
	return &RoomService{api: api}
}

func roomCodePath(code string) string {
	return "/api/rooms/by-code/" + url.PathEscape(strings.TrimSpace(code))
}

func (s *RoomService) ListRooms(ctx context.Context) ([]*models.Room, error) {
	var resp models.ListRoomsResponse
	if err := s.api.Do(ctx, http.MethodGet, "/api/rooms", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return resp.Rooms, nil
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest) (*models.Room, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrRoomNameRequired
	}

	body := map[string]interface{}{"room": req}
	var resp models.RoomResponse
	if err := s.api.Do(ctx, http.MethodPost, "/api/rooms", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	if resp.Room == nil {
		return nil, fmt.Errorf("failed to create room: empty response")
	}
	return resp.Room, nil
}

func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrRoomCodeRequired
	}

	var resp models.RoomResponse
	if err := s.api.Do(ctx, http.MethodGet, roomCodePath(code), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", code, err)
	}
	return resp.Room, nil
}

func (s *RoomService) LeaveRoomByCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrRoomCodeRequired
	}
	if err := s.api.Do(ctx, http.MethodPost, roomCodePath(code)+"/leave", nil, nil); err != nil {
		return fmt.Errorf("failed to leave room %s: %w", code, err)
	}
	return nil
}

func (s *RoomService) ListParticipantsByCode(ctx context.Context, code string) (*models.ParticipantsResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrRoomCodeRequired
	}

	var resp models.ParticipantsResponse
	if err := s.api.Do(ctx, http.MethodGet, roomCodePath(code)+"/participants", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list participants of %s: %w", code, err)
	}
	return &resp, nil
}
