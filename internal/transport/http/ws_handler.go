package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WSHandler runs play sessions: it presents questions, locks answers, counts
// down the time limit and reports the finish, one session per attempt.
type WSHandler struct {
	service     *app.QuizService
	registry    app.PlayRegistry
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	tick        time.Duration
	monitorOpts []app.MonitorOption

	// parked holds attempts whose timed session dropped while the countdown
	// kept running; the next session for the attempt resumes that monitor.
	mu     sync.Mutex
	parked map[string]struct{}
}

// WSOption customizes a WSHandler.
type WSOption func(*WSHandler)

// WithTickInterval sets how often remaining time is pushed to the client.
func WithTickInterval(d time.Duration) WSOption {
	return func(h *WSHandler) { h.tick = d }
}

// WithMonitorOptions passes options to every deadline monitor.
func WithMonitorOptions(opts ...app.MonitorOption) WSOption {
	return func(h *WSHandler) { h.monitorOpts = append(h.monitorOpts, opts...) }
}

func NewWSHandler(service *app.QuizService, registry app.PlayRegistry, logger *slog.Logger, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		service:  service,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tick:   time.Second,
		parked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex *int   `json:"questionIndex"`
	Option        string `json:"option"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
	// final closes the connection once written
	final bool
}

type startedPayload struct {
	AttemptID        string `json:"attemptId"`
	Title            string `json:"title"`
	TotalQuestions   int    `json:"totalQuestions"`
	Answered         int    `json:"answered"`
	TimeLimitSeconds int64  `json:"timeLimitSeconds,omitempty"`
	RemainingSeconds int64  `json:"remainingSeconds,omitempty"`
	Resumed          bool   `json:"resumed,omitempty"`
}

type questionPayload struct {
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type tickPayload struct {
	RemainingSeconds int64 `json:"remainingSeconds"`
}

type indexPayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type finishedPayload struct {
	Score          int  `json:"score"`
	TotalQuestions int  `json:"totalQuestions"`
	TimedOut       bool `json:"timedOut"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsSession serializes writes through one writer goroutine.
type wsSession struct {
	conn       *websocket.Conn
	send       chan outboundMessage[any]
	closed     chan struct{}
	writerDone chan struct{}
	logger     *slog.Logger
}

func (s *wsSession) push(msgType string, payload any) bool {
	return s.enqueue(outboundMessage[any]{Type: msgType, Payload: payload})
}

func (s *wsSession) pushFinal(msgType string, payload any) bool {
	return s.enqueue(outboundMessage[any]{Type: msgType, Payload: payload, final: true})
}

func (s *wsSession) enqueue(msg outboundMessage[any]) bool {
	select {
	case s.send <- msg:
		return true
	case <-s.writerDone:
		return false
	}
}

func (s *wsSession) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug("ws write error", "error", err)
				return
			}
			if msg.final {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.Type),
					time.Now().Add(time.Second))
				// unblocks the read loop
				_ = s.conn.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

// ServeWS upgrades GET /ws/attempts/{attemptID} into a play session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	// session work must not stop with the hijacked request's context
	ctx := context.WithoutCancel(r.Context())

	pc, err := h.service.Play(ctx, attemptID)
	if err != nil {
		respondError(w, err)
		return
	}

	var (
		monitor *app.DeadlineMonitor
		resumed bool
	)
	if !pc.Attempt.Finished() {
		monitor, resumed, err = h.acquire(ctx, pc)
		if err != nil {
			respondError(w, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "attempt_id", attemptID, "error", err)
		switch {
		case resumed:
			h.endSession(ctx, monitor)
		case monitor != nil:
			h.release(ctx, attemptID)
		}
		return
	}
	defer conn.Close()

	s := &wsSession{
		conn:       conn,
		send:       make(chan outboundMessage[any], 16),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
		logger:     h.logger,
	}
	go s.writeLoop()

	total := len(pc.Quiz.Questions)
	started := startedPayload{
		AttemptID:        attemptID,
		Title:            pc.Quiz.Title,
		TotalQuestions:   total,
		Answered:         pc.Progress.Answered,
		TimeLimitSeconds: int64(pc.Quiz.TimeLimit() / time.Second),
		Resumed:          resumed,
	}
	if monitor != nil && monitor.Limit() > 0 {
		started.RemainingSeconds = int64(math.Ceil(monitor.Remaining().Seconds()))
	}
	s.push("started", started)

	if monitor == nil {
		score := 0
		if pc.Attempt.Score != nil {
			score = *pc.Attempt.Score
		}
		s.pushFinal("finished", finishedPayload{Score: score, TotalQuestions: total})
		h.drain(s)
		return
	}

	h.logger.Info("play session started", "attempt_id", attemptID, "time_limit", pc.Quiz.TimeLimit(), "resumed", resumed)
	watchDone := make(chan struct{})
	go h.watch(s, monitor, total, watchDone)

	if pc.Progress.Done() {
		// every question was locked in an earlier session
		go func() { _, _ = monitor.Complete(ctx) }()
	} else {
		s.push("question", questionFor(pc.Quiz, pc.Progress.Current))
		monitor.Start()
	}

	h.readLoop(ctx, s, pc.Quiz, monitor)

	close(s.closed)
	<-s.writerDone
	<-watchDone
	h.endSession(ctx, monitor)
}

func (h *WSHandler) readLoop(ctx context.Context, s *wsSession, quiz domain.Quiz, monitor *app.DeadlineMonitor) {
	attemptID := monitor.AttemptID()
	for {
		var inbound inboundMessage
		if err := s.conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionIndex == nil {
				s.push("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			idx := *payload.QuestionIndex
			done, ok := monitor.Track()
			if !ok {
				s.push("error", errorPayload{Message: domain.ErrAttemptFinished.Error()})
				continue
			}
			_, err := h.service.SubmitResponse(ctx, attemptID, idx, payload.Option)
			done()
			switch {
			case errors.Is(err, domain.ErrAlreadyAnswered):
				s.push("answerLocked", indexPayload{QuestionIndex: idx})
				continue
			case err != nil:
				s.push("error", errorPayload{Message: err.Error()})
				continue
			}
			s.push("answerAccepted", indexPayload{QuestionIndex: idx})
			h.advance(ctx, s, quiz, monitor)
		case "finish":
			go func() { _, _ = monitor.Complete(ctx) }()
		default:
			s.push("error", errorPayload{Message: "unsupported message type"})
		}
	}
}

// advance presents the next unlocked question, or completes the attempt once
// every question is locked.
func (h *WSHandler) advance(ctx context.Context, s *wsSession, quiz domain.Quiz, monitor *app.DeadlineMonitor) {
	progress, err := h.service.Progress(ctx, monitor.AttemptID())
	if err != nil {
		s.push("error", errorPayload{Message: err.Error()})
		return
	}
	if progress.Done() {
		go func() { _, _ = monitor.Complete(ctx) }()
		return
	}
	s.push("question", questionFor(quiz, progress.Current))
}

// watch pushes ticks while the countdown runs and the finished message once
// the monitor has fired.
func (h *WSHandler) watch(s *wsSession, monitor *app.DeadlineMonitor, total int, done chan<- struct{}) {
	defer close(done)
	var ticks <-chan time.Time
	if monitor.Limit() > 0 && h.tick > 0 {
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		ticks = ticker.C
	}
	for {
		select {
		case <-ticks:
			remaining := int64(math.Ceil(monitor.Remaining().Seconds()))
			s.push("tick", tickPayload{RemainingSeconds: remaining})
		case <-monitor.Done():
			outcome, err := monitor.Result()
			if err != nil {
				h.logger.Error("finish failed", "attempt_id", monitor.AttemptID(), "error", err)
				s.pushFinal("error", errorPayload{Message: "could not finish attempt"})
				return
			}
			score := 0
			if outcome.Attempt.Score != nil {
				score = *outcome.Attempt.Score
			}
			s.pushFinal("finished", finishedPayload{Score: score, TotalQuestions: total, TimedOut: outcome.TimedOut})
			return
		case <-s.closed:
			return
		}
	}
}

// acquire claims attemptID for a new session. A timed countdown left running
// by a dropped session is resumed with its clock intact; a session that is
// still connected keeps the attempt.
func (h *WSHandler) acquire(ctx context.Context, pc app.PlayContext) (*app.DeadlineMonitor, bool, error) {
	attemptID := pc.Attempt.ID
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.parked[attemptID]; ok {
		if monitor, ok := h.registry.Get(attemptID); ok {
			delete(h.parked, attemptID)
			return monitor, true, nil
		}
		delete(h.parked, attemptID)
	}
	monitor := h.service.NewMonitor(pc, h.monitorOpts...)
	if err := h.registry.Claim(ctx, attemptID, monitor); err != nil {
		return nil, false, err
	}
	return monitor, false, nil
}

// endSession releases the attempt. A timed countdown survives a disconnect:
// the monitor is parked for a reconnecting session and the attempt is
// released once the deadline has finished it.
func (h *WSHandler) endSession(ctx context.Context, monitor *app.DeadlineMonitor) {
	attemptID := monitor.AttemptID()
	select {
	case <-monitor.Done():
		h.release(ctx, attemptID)
		return
	default:
	}
	if monitor.Limit() > 0 {
		h.mu.Lock()
		h.parked[attemptID] = struct{}{}
		h.mu.Unlock()
		h.logger.Info("play session disconnected, countdown continues", "attempt_id", attemptID, "remaining", monitor.Remaining())
		go func() {
			<-monitor.Done()
			h.release(ctx, attemptID)
		}()
		return
	}
	monitor.Stop()
	h.release(ctx, attemptID)
	h.logger.Info("play session disconnected", "attempt_id", attemptID)
}

func (h *WSHandler) release(ctx context.Context, attemptID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.parked, attemptID)
	h.registry.Release(ctx, attemptID)
}

// drain waits for the client to go away after a final message.
func (h *WSHandler) drain(s *wsSession) {
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			break
		}
	}
	close(s.closed)
	<-s.writerDone
}

func questionFor(quiz domain.Quiz, index int) questionPayload {
	q := quiz.Questions[index]
	return questionPayload{Index: index, Text: q.Text, Options: append([]string(nil), q.Options...)}
}
