package domain

import "errors"

// ErrNoData indica que la fuente respondió pero sin precio utilizable para el símbolo.
var ErrNoData = errors.New("no price data")
