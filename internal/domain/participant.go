package domain

// Participant is the authoritative per-room record of one connected identity.
// It is owned by the signaling hub and never carries transport fields.
type Participant struct {
	User       User `json:"user"`
	IsMuted    bool `json:"isMuted"`
	IsVideoOff bool `json:"isVideoOff"`
	IsAdmin    bool `json:"isAdmin"`
}

func NewParticipant(user User, isAdmin bool) *Participant {
	return &Participant{User: user, IsAdmin: isAdmin}
}

// ParticipantDTO is the flat wire view of a participant.
type ParticipantDTO struct {
	ID         UserID `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl,omitempty"`
	IsMuted    bool   `json:"isMuted"`
	IsVideoOff bool   `json:"isVideoOff"`
	IsAdmin    bool   `json:"isAdmin"`
}

func (p *Participant) DTO() ParticipantDTO {
	return ParticipantDTO{
		ID:         p.User.ID,
		Name:       p.User.Username,
		ImageURL:   p.User.AvatarURL,
		IsMuted:    p.IsMuted,
		IsVideoOff: p.IsVideoOff,
		IsAdmin:    p.IsAdmin,
	}
}
