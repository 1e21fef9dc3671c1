package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/tools"
	"github.com/scholartech/scholargraph/pkg/logging"
)

const maxLineBytes = 8 * 1024 * 1024

// LineServer speaks newline-delimited JSON-RPC over a duplex byte stream,
// typically stdin/stdout. One core serves the whole connection.
type LineServer struct {
	core *Core
	in   io.Reader
	out  io.Writer
	log  zerolog.Logger
}

// NewLineServer creates the line transport over the given streams.
func NewLineServer(dispatcher *tools.Dispatcher, in io.Reader, out io.Writer) *LineServer {
	return &LineServer{
		core: NewCore(dispatcher),
		in:   in,
		out:  out,
		log:  logging.GetLogger("server.line"),
	}
}

// Run reads messages until EOF or context cancellation. Malformed lines get
// a parse-error response; the loop keeps going.
func (s *LineServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	encoder := json.NewEncoder(s.out)

	s.log.Info().Msg("Line transport ready")
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, decodeErr := DecodeRequest(line)
		if decodeErr != nil {
			if err := encoder.Encode(decodeErr); err != nil {
				return err
			}
			continue
		}

		resp := s.core.Handle(ctx, req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	s.log.Info().Msg("Line transport closed")
	return nil
}
