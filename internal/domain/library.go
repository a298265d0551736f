package domain

// Library is the client's cached view of a server library.
// Libraries are replaced wholesale on each successful sync pass.
type Library struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	DisplayOrder int      `json:"display_order"`
	Icon         string   `json:"icon,omitempty"`
	MediaType    string   `json:"media_type"`
	Folders      []Folder `json:"folders,omitempty"`
}

// Folder is a server-side filesystem root within a library.
type Folder struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}
