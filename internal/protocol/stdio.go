package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// ServeStdio runs the newline-delimited JSON-RPC loop until EOF or context
// cancellation. One message per line; an undecodable line is logged and
// skipped so a single bad line cannot wedge the stream.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Printf("skipping undecodable line: %v", err)
			continue
		}
		resp := s.Handle(ctx, req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && err != io.ErrClosedPipe {
		return err
	}
	return nil
}
