package rommclient

import "time"

// romSchema is the subset of the remote service's rom search result this
// client needs.
type romSchema struct {
	ID int64 `json:"id"`
}

// detailedRomSchema is the subset of the remote service's per-rom detail
// response this client needs.
type detailedRomSchema struct {
	ID            int64        `json:"id"`
	FileNameNoExt string       `json:"file_name_no_ext"`
	UserSaves     []saveSchema `json:"user_saves"`
}

// saveSchema is the subset of one user-save record in a detailedRomSchema.
type saveSchema struct {
	ID            int64     `json:"id"`
	FileName      string    `json:"file_name"`
	FileNameNoExt string    `json:"file_name_no_ext"`
	FileExtension string    `json:"file_extension"`
	Emulator      *string   `json:"emulator"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DownloadPath  string    `json:"download_path"`
}
