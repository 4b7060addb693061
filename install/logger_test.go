package install

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

func defaultLogger(t *testing.T) logr.Logger {
	zl := zerolog.New(zerolog.NewTestWriter(t)).With().Caller().Timestamp().Logger()
	return zerologr.New(&zl)
}
