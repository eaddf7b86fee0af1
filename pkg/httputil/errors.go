package httputil

import "errors"

var errTrailingData = errors.New("unexpected data after JSON body")
