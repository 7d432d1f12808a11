package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

func dialStream(t *testing.T, g *Gateway) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := newTestServer(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

// readFrames reads frames until the server closes the connection.
func readFrames(ctx context.Context, t *testing.T, conn *websocket.Conn) ([]streamFrame, websocket.StatusCode) {
	t.Helper()
	var frames []streamFrame
	for {
		var f streamFrame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return frames, websocket.CloseStatus(err)
		}
		frames = append(frames, f)
	}
}

func TestStream_RelaysChunks(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{chunks: []provider.StreamChunk{
		{Type: provider.ChunkTextStart, ID: "txt-0"},
		{Type: provider.ChunkTextDelta, ID: "txt-0", Delta: "Reach Piet at piet@example.nl."},
		{Type: provider.ChunkTextDelta, ID: "txt-0", Delta: "Reach Piet at [EMAIL].", Replace: true},
		{Type: provider.ChunkTextEnd, ID: "txt-0"},
		{Type: provider.ChunkFinish, FinishReason: provider.FinishReasonStop, Usage: &provider.TokenUsage{PromptTokens: 9, CompletionTokens: 7, TotalTokens: 16}},
	}}
	g := newTestGateway(t, Config{}, Deps{Generator: gen})
	conn, ctx := dialStream(t, g)

	if err := wsjson.Write(ctx, conn, GenerateRequest{
		Prompt: "How do I reach Piet?",
		Config: RequestScope{OrganizationID: "org-1", ConversationID: "c-1"},
	}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	frames, code := readFrames(ctx, t, conn)
	if code != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", code)
	}

	var types []string
	for _, f := range frames {
		types = append(types, string(f.Type))
	}
	want := "text-start,text-delta,text-delta,text-end,finish"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("frames = %s, want %s", got, want)
	}
	if !frames[2].Replace || frames[2].Delta != "Reach Piet at [EMAIL]." {
		t.Errorf("replace frame = %+v", frames[2])
	}
	if frames[4].Usage == nil || frames[4].Usage.TotalTokens != 16 || frames[4].FinishReason != provider.FinishReasonStop {
		t.Errorf("finish frame = %+v", frames[4])
	}
	if gen.lastPrompt() != "How do I reach Piet?" {
		t.Errorf("prompt = %q", gen.lastPrompt())
	}
}

func TestStream_Errors(t *testing.T) {
	t.Parallel()

	violation := &guard.Violation{Kind: guard.KindTopic, Severity: guard.SeverityBlock, Message: "restricted topic"}

	tests := []struct {
		name      string
		gen       *fakeGenerator
		request   any
		wantCode  websocket.StatusCode
		wantError string
		wantKind  guard.Kind
	}{
		{
			name:      "violation before model call",
			gen:       &fakeGenerator{streamErr: violation},
			request:   GenerateRequest{Prompt: "hi", Config: RequestScope{OrganizationID: "o"}},
			wantCode:  websocket.StatusPolicyViolation,
			wantError: "guardrail_violation",
			wantKind:  guard.KindTopic,
		},
		{
			name: "violation mid stream",
			gen: &fakeGenerator{chunks: []provider.StreamChunk{
				{Type: provider.ChunkError, Err: violation},
			}},
			request:   GenerateRequest{Prompt: "hi", Config: RequestScope{OrganizationID: "o"}},
			wantCode:  websocket.StatusPolicyViolation,
			wantError: "guardrail_violation",
			wantKind:  guard.KindTopic,
		},
		{
			name:      "missing organization",
			gen:       &fakeGenerator{},
			request:   GenerateRequest{Prompt: "hi"},
			wantCode:  websocket.StatusInvalidFramePayloadData,
			wantError: "invalid_request",
		},
		{
			name:      "upstream failure",
			gen:       &fakeGenerator{streamErr: errors.New("connection reset")},
			request:   GenerateRequest{Prompt: "hi", Config: RequestScope{OrganizationID: "o"}},
			wantCode:  websocket.StatusInternalError,
			wantError: "upstream_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := newTestGateway(t, Config{}, Deps{Generator: tt.gen})
			conn, ctx := dialStream(t, g)
			if err := wsjson.Write(ctx, conn, tt.request); err != nil {
				t.Fatalf("write request: %v", err)
			}

			frames, code := readFrames(ctx, t, conn)
			if code != tt.wantCode {
				t.Errorf("close status = %v, want %v", code, tt.wantCode)
			}
			if len(frames) != 1 || frames[0].Type != provider.ChunkError {
				t.Fatalf("frames = %+v, want one error frame", frames)
			}
			if frames[0].Error != tt.wantError || frames[0].Kind != tt.wantKind {
				t.Errorf("error frame = %+v", frames[0])
			}
			if tt.wantKind != "" && frames[0].Message != violation.UserMessage() {
				t.Errorf("message = %q, want the user message", frames[0].Message)
			}
		})
	}
}

func TestStream_ClientCloseCancelsTurn(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		chunks:  []provider.StreamChunk{{Type: provider.ChunkTextStart, ID: "txt-0"}},
		block:   true,
		stopped: make(chan struct{}),
	}
	g := newTestGateway(t, Config{}, Deps{Generator: gen})
	conn, ctx := dialStream(t, g)

	if err := wsjson.Write(ctx, conn, GenerateRequest{Prompt: "hi", Config: RequestScope{OrganizationID: "o"}}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	var first streamFrame
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read: %v", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	select {
	case <-gen.stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("generator was not cancelled after the client closed")
	}
}
