package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// streamFrame is one server-to-client message on /v1/stream. Chunk frames
// mirror provider.StreamChunk; the error frame carries a code and message.
type streamFrame struct {
	Type         provider.ChunkType    `json:"type"`
	ID           string                `json:"id,omitempty"`
	Delta        string                `json:"delta,omitempty"`
	Replace      bool                  `json:"replace,omitempty"`
	FinishReason provider.FinishReason `json:"finishReason,omitempty"`
	Usage        *provider.TokenUsage  `json:"usage,omitempty"`
	Error        string                `json:"error,omitempty"`
	Kind         guard.Kind            `json:"kind,omitempty"`
	Message      string                `json:"message,omitempty"`
}

const frameWriteTimeout = 10 * time.Second

// handleStream upgrades to a WebSocket, reads one GenerateRequest frame
// and relays the turn's chunks as JSON frames. The client closing the
// socket cancels the turn.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(int64(g.config.MaxBodyBytes) + 1)

		start := time.Now()
		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			g.logger.Debug("gateway: no stream request received", "error", err)
			return
		}

		var req GenerateRequest
		err = g.decodeRequest(bytes.NewReader(data), &req)
		if err == nil {
			err = g.admit(req.Config.OrganizationID)
		}
		if err != nil {
			g.closeWithError(ctx, conn, err, start)
			return
		}

		// Frames sent by the client after the request are discarded; its
		// close frame cancels ctx.
		ctx, cancel := context.WithCancel(conn.CloseRead(ctx))
		defer cancel()

		chunks, err := g.generator.GenerateStream(ctx, req.Prompt, g.guardConfig(req.Config))
		if err != nil {
			g.closeWithError(ctx, conn, err, start)
			return
		}

		outcome := outcomeOK
		for chunk := range chunks {
			if chunk.Type == provider.ChunkError {
				outcome = g.writeChunkError(ctx, conn, chunk.Err)
				continue
			}
			if chunk.Type == provider.ChunkFinish && chunk.Usage != nil {
				g.metrics.addUsage(*chunk.Usage)
				if g.limiter != nil {
					g.limiter.RecordTokens(req.Config.OrganizationID, chunk.Usage.TotalTokens)
				}
			}
			if err := g.writeFrame(ctx, conn, chunkFrame(chunk)); err != nil {
				outcome = outcomeAborted
				// The generator closes chunks once it observes ctx.
				cancel()
				for range chunks {
				}
				break
			}
		}
		if outcome == outcomeOK && ctx.Err() != nil {
			outcome = outcomeAborted
		}
		g.metrics.observe("stream", outcome, time.Since(start))

		if outcome == outcomeViolation {
			_ = conn.Close(websocket.StatusPolicyViolation, "guardrail violation")
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func chunkFrame(c provider.StreamChunk) streamFrame {
	return streamFrame{
		Type:         c.Type,
		ID:           c.ID,
		Delta:        c.Delta,
		Replace:      c.Replace,
		FinishReason: c.FinishReason,
		Usage:        c.Usage,
	}
}

func (g *Gateway) writeFrame(ctx context.Context, conn *websocket.Conn, f streamFrame) error {
	ctx, cancel := context.WithTimeout(ctx, frameWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

// writeChunkError sends an error frame for a mid-stream failure and
// returns the metrics outcome.
func (g *Gateway) writeChunkError(ctx context.Context, conn *websocket.Conn, err error) string {
	if err == nil {
		err = errors.New("stream failed")
	}
	_, body, outcome := classify(err)
	if outcome == outcomeUpstream {
		g.logger.Error("gateway: stream failed", "error", err)
	}
	_ = g.writeFrame(ctx, conn, streamFrame{
		Type:    provider.ChunkError,
		Error:   body.Error,
		Kind:    body.Kind,
		Message: body.Message,
	})
	return outcome
}

// closeWithError reports a failure that happened before any chunk was
// produced and closes the socket with a matching status.
func (g *Gateway) closeWithError(ctx context.Context, conn *websocket.Conn, err error, start time.Time) {
	outcome := g.writeChunkError(ctx, conn, err)
	g.metrics.observe("stream", outcome, time.Since(start))

	code := websocket.StatusInternalError
	switch outcome {
	case outcomeViolation:
		code = websocket.StatusPolicyViolation
	case outcomeBadRequest:
		code = websocket.StatusInvalidFramePayloadData
	case outcomeRateLimited:
		code = websocket.StatusTryAgainLater
	}
	_ = conn.Close(code, outcome)
}
