package types

import "strings"

// RoomKey names a group of connections that receive the same events.
type RoomKey string

const AdminRoom RoomKey = "admin-broadcast"

const (
	subjectRoomPrefix = "subject:"
	bookingRoomPrefix = "booking:"
)

func SubjectRoom(subjectId string) RoomKey {
	return RoomKey(subjectRoomPrefix + subjectId)
}

func BookingRoom(bookingId string) RoomKey {
	return RoomKey(bookingRoomPrefix + bookingId)
}

// BookingId returns the booking id of a booking room key.
func (k RoomKey) BookingId() (string, bool) {
	if !strings.HasPrefix(string(k), bookingRoomPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(k), bookingRoomPrefix), true
}

func (k RoomKey) String() string {
	return string(k)
}
