package models

type Room struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Name        *string `json:"name,omitempty"`
	IsActive    bool    `json:"is_active"`
	CreatedByID string  `json:"created_by_id,omitempty"`
	InsertedAt  string  `json:"inserted_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// DisplayName falls back to the code for unnamed rooms.
func (r *Room) DisplayName() string {
	if r.Name != nil && *r.Name != "" {
		return *r.Name
	}
	return r.Code
}

type Participant struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	JoinedAt   string `json:"joined_at,omitempty"`
	InsertedAt string `json:"inserted_at,omitempty"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type ListRoomsResponse struct {
	Rooms []*Room `json:"rooms"`
}

type RoomResponse struct {
	Message string `json:"message,omitempty"`
	Room    *Room  `json:"room"`
}

type JoinRoomResponse struct {
	Message     string       `json:"message"`
	Room        *Room        `json:"room,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
}

type ParticipantsResponse struct {
	Room         *Room          `json:"room"`
	Participants []*Participant `json:"participants"`
}

type ChatMessage struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	InsertedAt string `json:"inserted_at"`
}

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// DisplayName prefers name, then username, then email.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Identity is who this client acts as, used for "is this mine" checks.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	User *User `json:"user"`
}
