package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/paulmach/orb"

	natsadapter "github.com/samirrijal/shotengai/internal/adapters/nats"
	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/editor"
	"github.com/samirrijal/shotengai/internal/core/featurestore"
	"github.com/samirrijal/shotengai/internal/core/geometry"
	"github.com/samirrijal/shotengai/internal/core/snap"
	"github.com/samirrijal/shotengai/internal/core/usecases"
)

// editCommand is one client request on the edit socket. X/Y are canvas
// pixels in the client's current viewport.
type editCommand struct {
	Seq        int               `json:"seq"`
	Op         string            `json:"op"`
	ID         string            `json:"id,omitempty"`
	Index      int               `json:"index,omitempty"`
	X          float64           `json:"x,omitempty"`
	Y          float64           `json:"y,omitempty"`
	Viewport   *snap.Viewport    `json:"viewport,omitempty"`
	Attributes domain.Attributes `json:"attributes,omitempty"`
}

// editReply answers one command.
type editReply struct {
	Type    string          `json:"type"`
	Seq     int             `json:"seq"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
	Vertex  *orb.Point      `json:"vertex,omitempty"`
	Snap    *snap.Candidate `json:"snap,omitempty"`
	Feature *domain.Feature `json:"feature,omitempty"`
}

// sessionMessage is pushed after every editor state change.
type sessionMessage struct {
	Type            string              `json:"type"`
	Session         string              `json:"session"`
	State           string              `json:"state"`
	Mode            string              `json:"mode,omitempty"`
	TargetID        string              `json:"target_id,omitempty"`
	Arcs            geometry.MultiLine  `json:"arcs,omitempty"`
	Working         geometry.SingleLine `json:"working,omitempty"`
	HiddenFeatureID string              `json:"hidden_feature_id,omitempty"`
}

// featuresMessage carries the full feature set after a refresh.
type featuresMessage struct {
	Type     string           `json:"type"`
	Features []domain.Feature `json:"features"`
}

// editConn is the per-connection editing state.
type editConn struct {
	id       string
	ws       *wsConn
	editor   *editor.Editor
	log      *slog.Logger
	timeout  time.Duration
	viewport snap.Viewport

	// stale is set when a change event arrived while a session was open.
	mu    sync.Mutex
	stale bool
}

// EditSessionHandler runs one Editor per websocket connection, writing
// through the in-process FeatureService.
func EditSessionHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		canWrite, _ := c.Locals(localsCanWrite).(bool)
		sessionID := uuid.NewString()
		log := slog.Default().With("session", sessionID, "remote", c.RemoteAddr().String())

		timeout := deps.WriteTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}

		ec := &editConn{
			id:      sessionID,
			ws:      &wsConn{conn: c},
			log:     log,
			timeout: timeout,
		}
		syncer := usecases.NewSyncClient(deps.Features,
			usecases.WithTransposeFix(deps.FixTransposed),
			usecases.WithSyncLogger(log),
		)
		ec.editor = editor.New(featurestore.New(), syncer,
			editor.WithCapability(func() bool { return canWrite }),
			editor.WithObserver(ec.pushSnapshot),
			editor.WithLogger(log),
		)

		log.Info("edit session connected", "can_write", canWrite)

		if err := ec.refresh(); err != nil {
			ec.pushSnapshot(ec.editor.Snapshot())
		}

		if deps.NATS != nil {
			sub, err := deps.NATS.Subscribe(natsadapter.SubjectPrefix+">", func(*nats.Msg) {
				ec.onRemoteChange()
			})
			if err != nil {
				log.Warn("edit session change subscription failed", "error", err)
			} else {
				defer func() { _ = sub.Unsubscribe() }()
			}
		}

		done := make(chan struct{})
		defer close(done)
		go ec.ws.keepAlive(done)

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			var cmd editCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				_ = ec.ws.writeJSON(editReply{Type: "reply", Error: "invalid JSON", Code: "bad_request"})
				continue
			}
			_ = ec.ws.writeJSON(ec.handle(cmd))
			ec.refreshIfStale()
		}

		// Dropping the connection discards any open session.
		_ = ec.editor.Cancel()
		log.Info("edit session disconnected")
	}
}

// handle applies one command to the editor.
func (ec *editConn) handle(cmd editCommand) editReply {
	reply := editReply{Type: "reply", Seq: cmd.Seq}
	if cmd.Viewport != nil {
		if !cmd.Viewport.Valid() {
			return ec.fail(reply, fmt.Errorf("%w: invalid viewport", errBadCommand))
		}
		ec.viewport = *cmd.Viewport
	}
	screen := orb.Point{cmd.X, cmd.Y}

	var err error
	switch cmd.Op {
	case "viewport":
		// Viewport already applied.
	case "start_drawing":
		err = ec.editor.StartDrawing()
	case "start_editing":
		err = ec.editor.StartEditing(cmd.ID)
	case "start_extending":
		err = ec.editor.StartExtending(cmd.ID)
	case "add_vertex", "insert_vertex", "move_vertex":
		if !ec.viewport.Valid() {
			return ec.fail(reply, fmt.Errorf("%w: send a viewport first", errBadCommand))
		}
		var p orb.Point
		switch cmd.Op {
		case "add_vertex":
			p, err = ec.editor.AddVertex(ec.viewport, screen)
		case "insert_vertex":
			p, err = ec.editor.InsertVertex(ec.viewport, cmd.Index, screen)
		default:
			p, err = ec.editor.MoveVertex(ec.viewport, cmd.Index, screen)
		}
		if err == nil {
			reply.Vertex = &p
		}
	case "delete_vertex":
		err = ec.editor.DeleteVertex(cmd.Index)
	case "break_segment":
		err = ec.editor.BreakSegment()
	case "hover":
		if !ec.viewport.Valid() {
			return ec.fail(reply, fmt.Errorf("%w: send a viewport first", errBadCommand))
		}
		if cand, ok := ec.editor.Hover(ec.viewport, screen); ok {
			reply.Snap = &cand
		}
	case "commit":
		ctx, cancel := context.WithTimeout(context.Background(), ec.timeout)
		var f domain.Feature
		f, err = ec.editor.Commit(ctx, cmd.Attributes)
		cancel()
		if err == nil {
			reply.Feature = &f
		}
	case "cancel":
		err = ec.editor.Cancel()
	case "delete":
		ctx, cancel := context.WithTimeout(context.Background(), ec.timeout)
		err = ec.editor.Delete(ctx, cmd.ID)
		cancel()
	case "refresh":
		err = ec.refresh()
	default:
		err = fmt.Errorf("%w: unknown op %q", errBadCommand, cmd.Op)
	}

	if err != nil {
		return ec.fail(reply, err)
	}
	reply.OK = true
	return reply
}

var errBadCommand = errors.New("bad command")

func (ec *editConn) fail(reply editReply, err error) editReply {
	reply.OK = false
	reply.Error = err.Error()
	reply.Code = commandErrorCode(err)
	return reply
}

// commandErrorCode maps editor and sync errors onto the codes used by the
// REST error envelope.
func commandErrorCode(err error) string {
	switch {
	case errors.Is(err, errBadCommand):
		return "bad_request"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case domain.IsRejected(err):
		return "rejected"
	case domain.IsTransport(err):
		return "unavailable"
	case errors.Is(err, editor.ErrSessionActive), errors.Is(err, editor.ErrSaving),
		errors.Is(err, editor.ErrStaleRefresh):
		return "conflict"
	case errors.Is(err, editor.ErrNoSession), errors.Is(err, editor.ErrNotDrawing),
		errors.Is(err, editor.ErrVertexIndex), errors.Is(err, geometry.ErrInsufficientVertices):
		return "invalid_state"
	default:
		return "internal_error"
	}
}

func (ec *editConn) pushSnapshot(s editor.Snapshot) {
	msg := sessionMessage{
		Type:            "session",
		Session:         ec.id,
		State:           s.State.String(),
		TargetID:        s.TargetID,
		Arcs:            s.Arcs,
		Working:         s.Working,
		HiddenFeatureID: s.HiddenFeatureID,
	}
	if s.State != editor.Idle {
		msg.Mode = s.Mode.String()
	}
	if err := ec.ws.writeJSON(msg); err != nil {
		ec.log.Debug("session push failed", "error", err)
	}
}

// refresh reloads the feature store and sends the result to the client.
func (ec *editConn) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), ec.timeout)
	defer cancel()
	if err := ec.editor.Refresh(ctx); err != nil {
		if errors.Is(err, editor.ErrSessionActive) || errors.Is(err, editor.ErrSaving) ||
			errors.Is(err, editor.ErrStaleRefresh) {
			ec.markStale()
		} else {
			ec.log.Warn("feature refresh failed", "error", err)
		}
		return err
	}
	return ec.ws.writeJSON(featuresMessage{Type: "features", Features: ec.editor.Store().All()})
}

// onRemoteChange reloads now when idle, otherwise after the session closes.
func (ec *editConn) onRemoteChange() {
	if ec.editor.State() != editor.Idle {
		ec.markStale()
		return
	}
	_ = ec.refresh()
}

func (ec *editConn) markStale() {
	ec.mu.Lock()
	ec.stale = true
	ec.mu.Unlock()
}

func (ec *editConn) refreshIfStale() {
	if ec.editor.State() != editor.Idle {
		return
	}
	ec.mu.Lock()
	stale := ec.stale
	ec.stale = false
	ec.mu.Unlock()
	if stale {
		_ = ec.refresh()
	}
}
