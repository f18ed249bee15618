package store

import "cashkiosk/pkg/platform/sentinel"

var ErrNotFound = sentinel.ErrNotFound
