package persistence

import (
	"context"
	"log/slog"

	"github.com/talgya/stackrank/internal/engine"
)

// Recorder writes a session's resolved combats and results to the archive
// as they happen.
type Recorder struct {
	db      *DB
	session *engine.Session
	matchID string
	sub     int
	events  <-chan engine.Event
}

// NewRecorder subscribes to s. The current match must already be in the
// archive.
func NewRecorder(db *DB, s *engine.Session) *Recorder {
	sub, events := s.Subscribe(256)
	return &Recorder{db: db, session: s, matchID: s.ID(), sub: sub, events: events}
}

// Close stops the subscription. Run drains what is buffered and returns.
func (r *Recorder) Close() {
	r.session.Unsubscribe(r.sub)
}

// Run consumes session events until ctx is done or the recorder is
// closed. Archive failures are logged and never interrupt play.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-r.events:
			if !ok {
				return
			}
			r.handle(e)
		}
	}
}

func (r *Recorder) handle(e engine.Event) {
	switch p := e.Payload.(type) {
	case engine.GameStarted:
		r.matchID = p.ID
		if err := r.db.CreateMatch(p.ID, p.Board, p.Players); err != nil {
			slog.Error("archive match failed", "match", p.ID, "error", err)
		}
	case engine.CombatOutcome:
		if err := r.db.AppendEntry(r.matchID, p.Seq, p.Entry); err != nil {
			slog.Error("archive entry failed", "match", r.matchID, "seq", p.Seq, "error", err)
		}
		if p.GameOver != nil {
			if err := r.db.FinishMatch(r.matchID, *p.GameOver); err != nil {
				slog.Error("archive result failed", "match", r.matchID, "error", err)
				return
			}
			slog.Info("match archived", "match", r.matchID, "winner", *p.GameOver, "entries", p.Seq+1)
		}
	}
}
