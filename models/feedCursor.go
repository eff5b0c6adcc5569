package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/utils"
)

// FeedCursor marks the newest row a client has already seen.
// ID is the tie-break for rows sharing a created_at; zero means "no tie-break".
type FeedCursor struct {
	Since time.Time
	ID    int
}

// ParseFeedCursor reads the since/since_id query pair, or the opaque cursor
// when one is given. An empty input yields (nil, nil).
func ParseFeedCursor(since, sinceID, cursor string) (*FeedCursor, error) {
	if strings.TrimSpace(cursor) != "" {
		return DecodeCompositeCursor(cursor)
	}
	if strings.TrimSpace(since) == "" {
		return nil, nil
	}
	t, err := utils.ParseSince(since)
	if err != nil {
		return nil, err
	}
	c := &FeedCursor{Since: t}
	if s := strings.TrimSpace(sinceID); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil || id < 0 {
			return nil, utils.NewValidationError("since_id must be a non-negative integer")
		}
		c.ID = id
	}
	return c, nil
}

// CursorOf returns the cursor for the newest row of a newest-first page.
func CursorOf[T FeedRow](rows []T) *FeedCursor {
	if len(rows) == 0 {
		return nil
	}
	return &FeedCursor{Since: rows[0].FeedCreatedAt(), ID: rows[0].FeedID()}
}

func (c FeedCursor) String() string {
	return EncodeCompositeCursor(c.Since, c.ID)
}

func EncodeCompositeCursor(createdAt time.Time, id int) string {
	cursor := fmt.Sprintf("%s|%d", utils.FormatCursorTime(createdAt), id)
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

func DecodeCompositeCursor(cursor string) (*FeedCursor, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cursor))
	if err != nil {
		return nil, utils.NewValidationError("cursor is not valid base64")
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, utils.NewValidationError("cursor is malformed")
	}
	t, err := utils.ParseSince(parts[0])
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, utils.NewValidationError("cursor is malformed")
	}
	return &FeedCursor{Since: t, ID: id}, nil
}
