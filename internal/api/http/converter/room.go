package converter

import (
	"time"

	"github.com/quietline/quietline/internal/domain"
)

type RoomResponse struct {
	Code      string            `json:"code"`
	Status    domain.RoomStatus `json:"status"`
	Host      *domain.Profile   `json:"host"`
	Guest     *domain.Profile   `json:"guest,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	return &RoomResponse{
		Code:      r.Code,
		Status:    r.Status,
		Host:      r.Host,
		Guest:     r.Guest,
		CreatedAt: r.CreatedAt,
	}
}
