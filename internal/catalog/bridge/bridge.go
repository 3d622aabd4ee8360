package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os/exec"
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/config"
	"tunesync/internal/logging"
	"tunesync/internal/services"
)

// Bridge implements catalog.Client over a JSON-RPC conversation with a
// subprocess. The bridge process owns catalog credentials and the wire
// protocol; this side only speaks typed requests and responses.
type Bridge struct {
	client *rpc.Client
	cmd    *exec.Cmd
	logger *slog.Logger
}

var _ catalog.Client = (*Bridge)(nil)

// Start launches the configured bridge command and verifies it responds.
func Start(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("bridge: config required")
	}
	command := cfg.Bridge.Command
	if command == "" {
		return nil, errors.New("bridge: command not configured")
	}

	cmd := exec.Command(command, cfg.Bridge.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("bridge: start %q: %w", command, err)
	}

	b := newWithConn(&stdioConn{reader: stdout, writer: stdin}, logger)
	b.cmd = cmd

	startupCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Bridge.StartupSeconds)*time.Second)
	defer cancel()
	if err := b.ping(startupCtx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("bridge: startup handshake: %w", err)
	}

	b.logger.Info("catalog bridge started", logging.String("command", command))
	return b, nil
}

// newWithConn wires a Bridge over an existing connection. Tests use this to
// talk to an in-process RPC server without spawning a subprocess.
func newWithConn(conn io.ReadWriteCloser, logger *slog.Logger) *Bridge {
	return &Bridge{
		client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)),
		logger: logging.NewComponentLogger(logger, "bridge"),
	}
}

// Close shuts down the RPC client and reaps the subprocess.
func (b *Bridge) Close() error {
	var errs []error
	if b.client != nil {
		if err := b.client.Close(); err != nil && !errors.Is(err, rpc.ErrShutdown) {
			errs = append(errs, err)
		}
	}
	if b.cmd != nil && b.cmd.Process != nil {
		if err := b.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Search returns up to limit candidates for the structured query.
func (b *Bridge) Search(ctx context.Context, query string, limit int) ([]catalog.CandidateRecord, error) {
	var resp SearchResponse
	if err := b.call(ctx, "Catalog.Search", SearchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if err := classify("search", resp.Error); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// Insert adds the track to the playlist and returns the resulting snapshot id.
func (b *Bridge) Insert(ctx context.Context, catalogURI, playlistID string) (string, error) {
	var resp InsertResponse
	req := InsertRequest{CatalogURI: catalogURI, PlaylistID: playlistID}
	if err := b.call(ctx, "Catalog.Insert", req, &resp); err != nil {
		return "", err
	}
	if err := classify("insert", resp.Error); err != nil {
		return "", err
	}
	return resp.SnapshotID, nil
}

// Exists reports whether the track is already a member of the playlist.
func (b *Bridge) Exists(ctx context.Context, catalogURI, playlistID string) (bool, error) {
	var resp ExistsResponse
	req := ExistsRequest{CatalogURI: catalogURI, PlaylistID: playlistID}
	if err := b.call(ctx, "Catalog.Exists", req, &resp); err != nil {
		return false, err
	}
	if err := classify("exists", resp.Error); err != nil {
		return false, err
	}
	return resp.Found, nil
}

func (b *Bridge) ping(ctx context.Context) error {
	var resp PingResponse
	if err := b.call(ctx, "Catalog.Ping", PingRequest{}, &resp); err != nil {
		return err
	}
	if err := classify("ping", resp.Error); err != nil {
		return err
	}
	if !resp.OK {
		return services.Wrap(services.ErrTransient, "bridge", "ping", "bridge not ready", nil)
	}
	return nil
}

func (b *Bridge) call(ctx context.Context, method string, req, resp any) error {
	call := b.client.Go(method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		if done.Error != nil {
			if errors.Is(done.Error, rpc.ErrShutdown) {
				return services.Wrap(services.ErrTransient, "bridge", method, "bridge process gone", done.Error)
			}
			return services.Wrap(services.ErrTransient, "bridge", method, "rpc call failed", done.Error)
		}
		return nil
	}
}

// stdioConn joins the subprocess stdout (reads) and stdin (writes) into a
// single connection for the jsonrpc codec.
type stdioConn struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (c *stdioConn) Read(p []byte) (int, error)  { return c.reader.Read(p) }
func (c *stdioConn) Write(p []byte) (int, error) { return c.writer.Write(p) }

func (c *stdioConn) Close() error {
	writeErr := c.writer.Close()
	readErr := c.reader.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}
