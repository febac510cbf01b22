package model

import "time"

// Item is one media object known to the upstream media store. Metadata is
// supplied by the store on every listing; the processing core never mutates it.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	MediaObject string    `json:"-"` // object key inside the media bucket
	Description string    `json:"description,omitempty"`
	UploadTime  time.Time `json:"uploadTime"`
}
