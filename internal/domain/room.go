package domain

import "strconv"

// RoomID is the discussion id a chat room is scoped to (an RFQ id).
type RoomID int64

func (r RoomID) String() string { return strconv.FormatInt(int64(r), 10) }

func ParseRoomID(s string) (RoomID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return RoomID(n), nil
}

type Room struct {
	ID RoomID
}
