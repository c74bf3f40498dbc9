// Package service implements the application services: the enrollment
// orchestrator, the bulk coordinator, the template vault operations and the
// tenant management operations.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/internal/device"
	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/internal/infrastructure/monitoring"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// OrchestratorConfig tunes the enrollment state machine.
type OrchestratorConfig struct {
	// StageTimeout bounds the wait for each capture event.
	StageTimeout time.Duration

	// CancelGracePeriod bounds the wait for the device to acknowledge a
	// cancel before the session is force-marked cancelled.
	CancelGracePeriod time.Duration
}

// EnrollmentAppService orchestrates enrollment sessions: it owns the state
// machine Pending -> InProgress -> Completed/Failed/Cancelled, drives the
// device link through the capture stages, and fans progress out through the
// broadcaster. Every session is run by exactly one goroutine.
type EnrollmentAppService struct {
	sessions    repository.SessionRepository
	templates   repository.TemplateRepository
	students    repository.StudentRepository
	registry    service.DeviceRegistry
	pool        *device.Pool
	cipher      service.TemplateCipher
	broadcaster service.Broadcaster
	notifier    service.EnrollmentNotifier
	metrics     *monitoring.Metrics // nil disables metric recording
	cfg         OrchestratorConfig
	log         logger.Logger

	mu      sync.Mutex
	running map[uuid.UUID]*runningSession
}

// runningSession is the in-flight handle the cancel path signals through.
type runningSession struct {
	cancel chan struct{}
	once   sync.Once
}

func (r *runningSession) signalCancel() {
	r.once.Do(func() { close(r.cancel) })
}

// NewEnrollmentAppService creates the orchestrator. metrics may be nil.
func NewEnrollmentAppService(
	sessions repository.SessionRepository,
	templates repository.TemplateRepository,
	students repository.StudentRepository,
	registry service.DeviceRegistry,
	pool *device.Pool,
	cipher service.TemplateCipher,
	broadcaster service.Broadcaster,
	notifier service.EnrollmentNotifier,
	metrics *monitoring.Metrics,
	cfg OrchestratorConfig,
	log logger.Logger,
) *EnrollmentAppService {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = constants.CaptureStageTimeout
	}
	if cfg.CancelGracePeriod <= 0 {
		cfg.CancelGracePeriod = constants.CancelGracePeriod
	}
	return &EnrollmentAppService{
		sessions:    sessions,
		templates:   templates,
		students:    students,
		registry:    registry,
		pool:        pool,
		cipher:      cipher,
		broadcaster: broadcaster,
		notifier:    notifier,
		metrics:     metrics,
		cfg:         cfg,
		log:         log.WithComponent("enrollment_orchestrator"),
		running:     make(map[uuid.UUID]*runningSession),
	}
}

// StartEnrollment validates the request, acquires the device and issues the
// start command, then detaches the capture loop. Precondition, connectivity
// and contention failures (StudentNotOnDevice, DeviceOffline, DeviceBusy)
// surface to the caller here; only capture progress is asynchronous.
func (s *EnrollmentAppService) StartEnrollment(ctx context.Context, tenantID uuid.UUID, req *dto.StartEnrollmentRequest) (*dto.SessionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	userRef, err := s.validateSubjects(ctx, tenantID, req.StudentID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	sess := models.NewEnrollmentSession(tenantID, req.StudentID, req.DeviceID, req.FingerIndex)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	rs := s.register(sess.ID)
	if s.metrics != nil {
		s.metrics.SessionsStarted.WithLabelValues("single").Inc()
	}

	log := s.sessionLogger(sess)
	link, handle, err := s.beginCapture(ctx, sess, userRef, log)
	if err != nil {
		s.failSession(ctx, sess, err, log)
		s.unregister(sess.ID)
		return nil, err
	}

	go func() {
		defer s.unregister(sess.ID)
		start := time.Now()
		defer func() {
			if s.metrics != nil {
				s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
			}
		}()
		s.captureLoop(context.Background(), sess, userRef, link, handle, rs, log)
	}()

	return dto.SessionResponseFrom(sess), nil
}

// EnrollAndWait runs one enrollment synchronously and returns the terminal
// session. Used by the bulk coordinator.
func (s *EnrollmentAppService) EnrollAndWait(ctx context.Context, tenantID, studentID, deviceID uuid.UUID, fingerIndex int) (*models.EnrollmentSession, error) {
	userRef, err := s.validateSubjects(ctx, tenantID, studentID, deviceID)
	if err != nil {
		return nil, err
	}
	sess := models.NewEnrollmentSession(tenantID, studentID, deviceID, fingerIndex)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	rs := s.register(sess.ID)
	if s.metrics != nil {
		s.metrics.SessionsStarted.WithLabelValues("bulk").Inc()
	}
	s.runSession(ctx, sess, userRef, rs)
	return sess, nil
}

// CancelEnrollment requests cancellation of an in-progress session. The
// request is acknowledged immediately; the terminal Cancelled event arrives
// through the broadcast stream once the device confirms or the grace period
// elapses.
func (s *EnrollmentAppService) CancelEnrollment(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != tenantID {
		return nil, errors.ErrNotFound("session", sessionID.String())
	}
	if !sess.IsCancellable() {
		return nil, errors.ErrNotCancellable(sessionID.String(), sess.Status)
	}

	s.mu.Lock()
	rs, ok := s.running[sessionID]
	s.mu.Unlock()

	if ok {
		rs.signalCancel()
		return dto.SessionResponseFrom(sess), nil
	}

	// No owning goroutine in this process. The session is stranded, most
	// likely by a restart; settle it directly.
	if err := sess.Cancel(); err != nil {
		return nil, errors.ErrNotCancellable(sessionID.String(), sess.Status)
	}
	s.settle(ctx, sess)
	return dto.SessionResponseFrom(sess), nil
}

// GetEnrollment returns one session scoped to the tenant.
func (s *EnrollmentAppService) GetEnrollment(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.TenantID != tenantID {
		return nil, errors.ErrNotFound("session", sessionID.String())
	}
	return dto.SessionResponseFrom(sess), nil
}

// ListEnrollments returns the tenant's sessions, newest first.
func (s *EnrollmentAppService) ListEnrollments(ctx context.Context, tenantID uuid.UUID, query *dto.ListSessionsQuery) (*dto.SessionListResponse, error) {
	filter := repository.SessionFilter{
		StudentID: query.StudentID,
		DeviceID:  query.DeviceID,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	sessions, total, err := s.sessions.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, dto.SessionResponseFrom(sess))
	}
	return &dto.SessionListResponse{Sessions: out, Total: total}, nil
}

// validateSubjects checks the enrollment preconditions: student and device
// exist and belong to the tenant, the device is live, and the student's user
// record is provisioned on it. The enrollment protocol never auto-provisions
// a missing roster record. Returns the student's on-device user ref.
func (s *EnrollmentAppService) validateSubjects(ctx context.Context, tenantID, studentID, deviceID uuid.UUID) (uint32, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return 0, err
	}
	if student.TenantID != tenantID {
		return 0, errors.ErrNotFound("student", studentID.String())
	}
	if !student.Active {
		return 0, errors.ErrInvalidRequest("student is deactivated")
	}
	resolved, err := s.registry.Resolve(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if resolved.TenantID != tenantID {
		return 0, errors.ErrNotFound("device", deviceID.String())
	}
	if !resolved.IsLive {
		return 0, errors.ErrDeviceOffline(deviceID.String())
	}
	onDevice, err := s.registry.HasStudent(ctx, deviceID, studentID)
	if err != nil {
		return 0, err
	}
	if !onDevice {
		return 0, errors.ErrStudentNotOnDevice(studentID.String(), deviceID.String())
	}
	return student.DeviceUserRef, nil
}

func (s *EnrollmentAppService) sessionLogger(sess *models.EnrollmentSession) logger.Logger {
	return s.log.WithFields(
		logger.String("session_id", sess.ID.String()),
		logger.String("device_id", sess.DeviceID.String()),
		logger.String("student_id", sess.StudentID.String()),
	)
}

func (s *EnrollmentAppService) register(sessionID uuid.UUID) *runningSession {
	rs := &runningSession{cancel: make(chan struct{})}
	s.mu.Lock()
	s.running[sessionID] = rs
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	return rs
}

func (s *EnrollmentAppService) unregister(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.running, sessionID)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
}

// ================================================================================
// Session State Machine
// ================================================================================

// runSession drives one session from Pending to a terminal state. It is the
// only writer of the session record after creation.
func (s *EnrollmentAppService) runSession(ctx context.Context, sess *models.EnrollmentSession, userRef uint32, rs *runningSession) {
	defer s.unregister(sess.ID)
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
		}
	}()

	log := s.sessionLogger(sess)

	// Cancel may have arrived while the session was still Pending.
	select {
	case <-rs.cancel:
		s.cancelPending(ctx, sess, log)
		return
	default:
	}

	link, handle, err := s.beginCapture(ctx, sess, userRef, log)
	if err != nil {
		s.failSession(ctx, sess, err, log)
		return
	}

	s.captureLoop(ctx, sess, userRef, link, handle, rs, log)
}

// beginCapture acquires the device's slot, moves the session InProgress and
// issues the start command. Contention and connectivity failures return here,
// before any capture work detaches.
func (s *EnrollmentAppService) beginCapture(
	ctx context.Context,
	sess *models.EnrollmentSession,
	userRef uint32,
	log logger.Logger,
) (device.Link, *device.Handle, error) {
	handle, err := s.pool.Acquire(ctx, sess.DeviceID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PoolAcquisitions.WithLabelValues(string(errors.CodeOf(err))).Inc()
		}
		return nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.PoolAcquisitions.WithLabelValues("ok").Inc()
	}

	if err := sess.Begin(); err != nil {
		handle.Release()
		return nil, nil, errors.ErrInternal(err.Error())
	}
	s.persistThenBroadcast(ctx, sess, log)

	link := handle.Link()
	if err := link.StartEnrollment(ctx, userRef, sess.FingerIndex); err != nil {
		handle.Discard()
		return nil, nil, err
	}
	return link, handle, nil
}

// captureLoop polls device events until the session reaches a terminal state.
func (s *EnrollmentAppService) captureLoop(
	ctx context.Context,
	sess *models.EnrollmentSession,
	userRef uint32,
	link device.Link,
	handle *device.Handle,
	rs *runningSession,
	log logger.Logger,
) {
	stageStart := time.Now()
	stageDeadline := stageStart.Add(s.cfg.StageTimeout)

	for {
		select {
		case <-rs.cancel:
			s.cancelOnDevice(ctx, sess, link, handle, log)
			return
		default:
		}

		ev, err := link.PollEvent(ctx, pollSlice(stageDeadline))
		if err == device.ErrPollTimeout {
			if time.Now().Before(stageDeadline) {
				continue
			}
			// The device produced nothing for a full stage window. Abort
			// on the device best-effort; its protocol state is unknown.
			_ = link.CancelEnrollment(ctx)
			handle.Discard()
			s.failSession(ctx, sess, errors.ErrTimeout(string(sess.Stage)), log)
			return
		}
		if err != nil {
			handle.Discard()
			s.failSession(ctx, sess, errors.ErrConnectionLost(sess.DeviceID.String()).WithCause(err), log)
			return
		}

		switch ev.Kind {
		case device.EventCapturePlaced:
			s.advance(ctx, sess, constants.StagePlacing, "finger detected, hold still", log)
			s.observeStage(constants.StageReady, stageStart)
			stageStart = time.Now()
			stageDeadline = stageStart.Add(s.cfg.StageTimeout)

		case device.EventCaptureHeld:
			s.advance(ctx, sess, constants.StageCapturing, "capturing sample", log)
			s.observeStage(constants.StagePlacing, stageStart)
			stageStart = time.Now()
			stageDeadline = stageStart.Add(s.cfg.StageTimeout)

		case device.EventCaptureComplete:
			s.observeStage(constants.StageCapturing, stageStart)
			s.completeSession(ctx, sess, userRef, link, handle, ev, log)
			return

		case device.EventCaptureRejected:
			handle.Release()
			s.failSession(ctx, sess, errors.ErrPoorQuality(ev.Reason), log)
			return

		case device.EventCancelAck:
			// Unsolicited abort, e.g. cancelled at the device itself.
			handle.Release()
			if err := sess.Cancel(); err == nil {
				s.settle(ctx, sess)
			}
			log.Info(ctx, "enrollment cancelled on the device")
			return

		default:
			log.Warn(ctx, "ignoring unknown device event", logger.String("kind", string(ev.Kind)))
		}
	}
}

// completeSession reads back the template if the completion event did not
// carry it, encrypts and stores it, and marks the session completed.
func (s *EnrollmentAppService) completeSession(
	ctx context.Context,
	sess *models.EnrollmentSession,
	userRef uint32,
	link device.Link,
	handle *device.Handle,
	ev device.Event,
	log logger.Logger,
) {
	raw, quality := ev.Template, ev.Quality
	if len(raw) == 0 {
		var err error
		raw, quality, err = link.ReadTemplate(ctx, userRef, sess.FingerIndex)
		if err != nil {
			handle.Discard()
			s.failSession(ctx, sess, errors.ErrTemplateCaptureError(sess.DeviceID.String()).WithCause(err), log)
			return
		}
	}
	handle.Release()

	// The device delivered a sample; any failure to secure it from here on
	// is a capture loss from the caller's point of view.
	ciphertext, keyID, err := s.cipher.Encrypt(ctx, raw)
	if err != nil {
		s.failSession(ctx, sess, errors.ErrTemplateCaptureError(sess.DeviceID.String()).WithCause(err), log)
		return
	}
	template := models.NewFingerprintTemplate(
		sess.TenantID, sess.StudentID, sess.DeviceID, sess.FingerIndex,
		ciphertext, keyID, quality,
	)
	if err := s.templates.Upsert(ctx, template); err != nil {
		s.failSession(ctx, sess, errors.ErrTemplateCaptureError(sess.DeviceID.String()).WithCause(err), log)
		return
	}

	if err := sess.Complete(template.ID, quality); err != nil {
		log.Error(ctx, "completion rejected by session state machine", err)
		return
	}
	s.settle(ctx, sess)
	log.Info(ctx, "enrollment completed",
		logger.String("template_id", template.ID.String()),
		logger.Int("quality", quality),
	)
}

// cancelOnDevice aborts the capture on the device and waits a bounded grace
// period for the acknowledgement. The session ends Cancelled either way; only
// the link's fate differs.
func (s *EnrollmentAppService) cancelOnDevice(
	ctx context.Context,
	sess *models.EnrollmentSession,
	link device.Link,
	handle *device.Handle,
	log logger.Logger,
) {
	acked := false
	if err := link.CancelEnrollment(ctx); err == nil {
		deadline := time.Now().Add(s.cfg.CancelGracePeriod)
		for time.Now().Before(deadline) {
			ev, err := link.PollEvent(ctx, pollSlice(deadline))
			if err != nil {
				break
			}
			if ev.Kind == device.EventCancelAck {
				acked = true
				break
			}
			// Progress events racing the cancel are dropped; the session
			// is already on its way to Cancelled.
		}
	}

	if acked {
		handle.Release()
	} else {
		log.Warn(ctx, "device did not acknowledge cancel within grace period")
		handle.Discard()
	}

	if err := sess.Cancel(); err != nil {
		log.Error(ctx, "cancel rejected by session state machine", err)
		return
	}
	s.settle(ctx, sess)
	log.Info(ctx, "enrollment cancelled", logger.Bool("device_acked", acked))
}

// cancelPending settles a session cancelled before the device was acquired.
func (s *EnrollmentAppService) cancelPending(ctx context.Context, sess *models.EnrollmentSession, log logger.Logger) {
	if err := sess.Cancel(); err != nil {
		return
	}
	s.settle(ctx, sess)
	log.Info(ctx, "enrollment cancelled before device acquisition")
}

// advance moves the session to the next stage and broadcasts. A duplicate or
// out-of-order device event is dropped; progress never moves backwards.
func (s *EnrollmentAppService) advance(ctx context.Context, sess *models.EnrollmentSession, stage constants.EnrollmentStage, message string, log logger.Logger) {
	if err := sess.AdvanceStage(stage, message); err != nil {
		log.Debug(ctx, "dropping out-of-order stage event",
			logger.String("stage", string(stage)),
			logger.Int("progress", sess.Progress),
		)
		return
	}
	s.persistThenBroadcast(ctx, sess, log)
}

// failSession marks the session failed with the error's taxonomy code.
func (s *EnrollmentAppService) failSession(ctx context.Context, sess *models.EnrollmentSession, cause error, log logger.Logger) {
	code := errors.CodeOf(cause)
	if err := sess.Fail(code, cause.Error()); err != nil {
		log.Error(ctx, "failure rejected by session state machine", err)
		return
	}
	s.settle(ctx, sess)
	log.Warn(ctx, "enrollment failed",
		logger.String("error_code", string(code)),
		logger.String("error", cause.Error()),
	)
}

// settle persists a terminal session, broadcasts the terminal event and
// notifies the messaging provider.
func (s *EnrollmentAppService) settle(ctx context.Context, sess *models.EnrollmentSession) {
	s.persistThenBroadcast(ctx, sess, s.log)
	ev := models.EventFromSession(sess)
	s.notifier.SessionFinished(ctx, ev)
	if s.metrics != nil {
		s.metrics.SessionsFinished.WithLabelValues(string(sess.Status), sess.ErrorCode).Inc()
	}
}

// persistThenBroadcast writes the session state before publishing it, so a
// subscriber never observes an event the store cannot confirm.
func (s *EnrollmentAppService) persistThenBroadcast(ctx context.Context, sess *models.EnrollmentSession, log logger.Logger) {
	if err := s.sessions.Update(ctx, sess); err != nil {
		log.Error(ctx, "failed to persist session state", err,
			logger.String("session_id", sess.ID.String()),
		)
		// The broadcast still goes out; observers tracking a live session
		// are better served by a possibly unconfirmed event than silence.
	}
	s.broadcaster.Publish(sess.TenantID, models.EventFromSession(sess))
}

func (s *EnrollmentAppService) observeStage(stage constants.EnrollmentStage, since time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStage(string(stage), time.Since(since))
	}
}

// pollSlice bounds one PollEvent call so cancel signals are noticed promptly
// even while the device is silent.
func pollSlice(deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining > time.Second {
		return time.Second
	}
	return remaining
}
