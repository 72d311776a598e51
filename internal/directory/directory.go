// Package directory is the user/room lookup collaborator. Real deployments
// load this from the project server; the static seed mirrors that contract
// without dragging persistence into the session layer.
package directory

import (
	"errors"
	"fmt"

	"github.com/openmeet/openmeet/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

type Directory struct {
	users []domain.User
	rooms []domain.Room
}

func New(users []domain.User, rooms []domain.Room) *Directory {
	return &Directory{users: users, rooms: rooms}
}

// NewStatic seeds a small fixture directory, enough to exercise every room
// flow in development.
func NewStatic() *Directory {
	users := []domain.User{
		{ID: "1", Name: "tester_1", RoomID: "1", SiteNo: "1"},
		{ID: "2", Name: "tester_2", RoomID: "1", SiteNo: "2"},
		{ID: "3", Name: "admin_3", RoomID: "1", Admin: true, SiteNo: "3"},
		{ID: "4", Name: "tester_4", RoomID: "2", SiteNo: "4"},
		{ID: "5", Name: "admin_5", RoomID: "2", Admin: true, SiteNo: "5"},
	}
	rooms := make([]domain.Room, 0, 10)
	for i := 1; i <= 10; i++ {
		rooms = append(rooms, domain.Room{
			ID:   domain.RoomID(fmt.Sprintf("%d", i)),
			Name: domain.RoomName(fmt.Sprintf("Room_%d", i)),
		})
	}
	return New(users, rooms)
}

func (d *Directory) UserByID(id domain.UserID) (*domain.User, error) {
	for i := range d.users {
		if d.users[i].ID == id {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: id %s", ErrUserNotFound, id)
}

func (d *Directory) UserBySiteNo(siteNo string) (*domain.User, error) {
	for i := range d.users {
		if d.users[i].SiteNo == siteNo {
			u := d.users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: siteNo %s", ErrUserNotFound, siteNo)
}

func (d *Directory) Rooms() []domain.Room {
	out := make([]domain.Room, len(d.rooms))
	copy(out, d.rooms)
	return out
}
