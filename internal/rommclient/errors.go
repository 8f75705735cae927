package rommclient

import "errors"

// Sentinel errors for classifying remote-client failures with errors.Is.
var (
	ErrRomNotFound     = errors.New("rommclient: no rom found with that name")
	ErrTooManyRoms     = errors.New("rommclient: more than one rom matched that name")
	ErrTooManySaves    = errors.New("rommclient: multiple remote saves tied for the latest timestamp")
	ErrNoDownloadPath  = errors.New("rommclient: remote save has no download path")
	ErrCreateNewExists = errors.New("rommclient: atomic download temp path already exists")
)
