package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/npezzotti/go-santa/internal/database"
	"github.com/npezzotti/go-santa/internal/draw"
	"github.com/npezzotti/go-santa/internal/stats"
	"github.com/npezzotti/go-santa/internal/types"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"github.com/teris-io/shortid"
)

const inviteCodeSize = 256

type Options struct {
	// AllowRedraw lets the owner run the draw again, replacing earlier results.
	AllowRedraw bool
	// RetainResults keeps draw results after their room is deleted.
	RetainResults bool
	// OwnerFirst lists the owner first in snapshots instead of the viewer.
	OwnerFirst bool
	// PublicURL is the base of the join links encoded in invite codes.
	PublicURL string
	// Engine computes draws; a default engine is used when nil.
	Engine *draw.Engine
}

type ReadyResult struct {
	IsReady  bool
	Snapshot types.Snapshot
}

// Coordinator owns every room operation. Mutations of a room are serialized
// by a per-room lock; each one validates, commits a single store call, and
// only then publishes an event.
type Coordinator struct {
	log      logrus.FieldLogger
	db       database.Repository
	registry *Registry
	bus      *EventBus
	stats    stats.StatsProvider
	engine   *draw.Engine
	validate *validator.Validate
	locks    *roomLocks
	opts     Options
	now      func() time.Time
}

func NewCoordinator(logger logrus.FieldLogger, db database.Repository, registry *Registry, bus *EventBus,
	st stats.StatsProvider, opts Options) *Coordinator {
	engine := opts.Engine
	if engine == nil {
		engine = draw.NewEngine()
	}

	return &Coordinator{
		log:      logger,
		db:       db,
		registry: registry,
		bus:      bus,
		stats:    st,
		engine:   engine,
		validate: newValidator(),
		locks:    newRoomLocks(),
		opts:     opts,
		now:      Now,
	}
}

func (c *Coordinator) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.Secret = strings.TrimSpace(params.Secret)
	if err := validationError(c.validate.Struct(params)); err != nil {
		return types.Room{}, err
	}

	if _, err := c.db.GetUser(ctx, params.OwnerId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Room{}, ErrValidation("owner does not exist")
		}
		return types.Room{}, c.storageError(err, "get owner")
	}

	room, err := c.db.CreateRoom(ctx, database.CreateRoomParams{
		Name:    params.Name,
		Secret:  params.Secret,
		OwnerId: params.OwnerId,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Room{}, ErrValidation("owner does not exist")
		}
		return types.Room{}, c.storageError(err, "create room")
	}

	c.stats.Incr(stats.RoomsCreated)
	c.log.WithFields(logrus.Fields{"room_id": room.Id, "owner_id": room.OwnerId}).Info("created room")

	return roomFromDB(room), nil
}

// JoinRoom adds the user to the room. joined is false when the user was
// already a participant, in which case nothing changes.
func (c *Coordinator) JoinRoom(ctx context.Context, params JoinRoomParams) (types.Room, bool, error) {
	params.Secret = strings.TrimSpace(params.Secret)
	if err := validationError(c.validate.Struct(params)); err != nil {
		return types.Room{}, false, err
	}

	unlock := c.locks.lock(params.RoomId)
	defer unlock()

	room, err := c.getRoom(ctx, params.RoomId)
	if err != nil {
		return types.Room{}, false, err
	}
	if subtle.ConstantTimeCompare([]byte(room.Secret), []byte(params.Secret)) != 1 {
		return types.Room{}, false, ErrNotFound("room")
	}

	if _, err := c.db.GetUser(ctx, params.UserId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Room{}, false, ErrValidation("user does not exist")
		}
		return types.Room{}, false, c.storageError(err, "get user")
	}

	created, err := c.db.AddParticipant(ctx, room.Id, params.UserId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Room{}, false, ErrNotFound("room")
		}
		return types.Room{}, false, c.storageError(err, "add participant")
	}
	if !created {
		return roomFromDB(room), false, nil
	}

	c.log.WithFields(logrus.Fields{"room_id": room.Id, "user_id": params.UserId}).Info("participant joined")
	if snap, ok := c.eventSnapshot(ctx, room); ok {
		c.bus.Publish(room.Id, NewParticipantJoined(room.Id, params.UserId, snap))
	}

	return roomFromDB(room), true, nil
}

// LeaveRoom removes the user from the room. When the owner leaves the room
// is deleted and roomDeleted is true.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomId, userId int) (bool, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return false, err
	}

	unlock := c.locks.lock(roomId)
	defer unlock()

	room, err := c.getRoom(ctx, roomId)
	if err != nil {
		return false, err
	}

	if room.OwnerId == userId {
		if err := c.destroyRoom(ctx, room); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := c.db.RemoveParticipant(ctx, roomId, userId); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, ErrNotFound("participant")
		}
		return false, c.storageError(err, "remove participant")
	}

	closed := c.registry.CloseUser(roomId, userId)
	c.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId, "closed_connections": closed}).
		Info("participant left")
	if snap, ok := c.eventSnapshot(ctx, room); ok {
		c.bus.Publish(roomId, NewParticipantLeft(roomId, userId, snap))
	}

	return false, nil
}

func (c *Coordinator) DeleteRoom(ctx context.Context, roomId, userId int) error {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return err
	}

	unlock := c.locks.lock(roomId)
	defer unlock()

	room, err := c.getRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if room.OwnerId != userId {
		return ErrForbidden("only the room owner can delete the room")
	}

	return c.destroyRoom(ctx, room)
}

// destroyRoom deletes the room, tells its subscribers, and closes their
// streams. The caller holds the room lock.
func (c *Coordinator) destroyRoom(ctx context.Context, room database.Room) error {
	if err := c.db.DeleteRoom(ctx, room.Id, !c.opts.RetainResults); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound("room")
		}
		return c.storageError(err, "delete room")
	}

	c.bus.Publish(room.Id, NewRoomDeleted(room.Id))
	closed := c.registry.CloseRoom(room.Id)
	c.stats.Incr(stats.RoomsDeleted)

	c.log.WithFields(logrus.Fields{"room_id": room.Id, "closed_connections": closed}).Info("deleted room")
	return nil
}

func (c *Coordinator) SelectLetter(ctx context.Context, roomId, userId, letterId int) error {
	if err := validationError(c.validate.Struct(letterChoice{RoomId: roomId, UserId: userId, LetterId: letterId})); err != nil {
		return err
	}

	unlock := c.locks.lock(roomId)
	defer unlock()

	room, err := c.getRoom(ctx, roomId)
	if err != nil {
		return err
	}
	if _, err := c.participant(ctx, roomId, userId); err != nil {
		return err
	}

	letter, err := c.db.GetLetter(ctx, letterId)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrConflict("letter not found or already used")
	case err != nil:
		return c.storageError(err, "get letter")
	case letter.OwnerId != userId || letter.InUse:
		return ErrConflict("letter not found or already used")
	}

	if err := c.db.SelectLetter(ctx, roomId, userId, letterId); err != nil {
		switch {
		case errors.Is(err, database.ErrLetterUnavailable):
			return ErrConflict("letter not found or already used")
		case errors.Is(err, database.ErrNotFound):
			return ErrForbidden("not a participant of this room")
		default:
			return c.storageError(err, "select letter")
		}
	}

	c.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId, "letter_id": letterId}).
		Info("letter selected")
	if snap, ok := c.eventSnapshot(ctx, room); ok {
		c.bus.Publish(roomId, NewLetterSelected(roomId, userId, snap))
	}

	return nil
}

func (c *Coordinator) ToggleReady(ctx context.Context, roomId, userId int) (ReadyResult, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return ReadyResult{}, err
	}

	unlock := c.locks.lock(roomId)
	defer unlock()

	room, err := c.getRoom(ctx, roomId)
	if err != nil {
		return ReadyResult{}, err
	}
	p, err := c.participant(ctx, roomId, userId)
	if err != nil {
		return ReadyResult{}, err
	}
	if !p.HasLetter() {
		return ReadyResult{}, ErrPreconditionFailed("select a letter first")
	}

	isReady, err := c.db.ToggleReady(ctx, roomId, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ReadyResult{}, ErrPreconditionFailed("select a letter first")
		}
		return ReadyResult{}, c.storageError(err, "toggle ready")
	}

	snap, err := c.snapshot(ctx, room, userId)
	if err != nil {
		return ReadyResult{}, err
	}

	c.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId, "ready": isReady}).Info("ready status changed")
	if evSnap, ok := c.eventSnapshot(ctx, room); ok {
		c.bus.Publish(roomId, NewReadyStatusChanged(roomId, userId, isReady, evSnap))
	}

	return ReadyResult{IsReady: isReady, Snapshot: snap}, nil
}

// StartDraw assigns every participant a receiver other than themselves and
// hands each giver the letter their receiver selected.
func (c *Coordinator) StartDraw(ctx context.Context, roomId, userId int) ([]types.DrawResult, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return nil, err
	}

	unlock := c.locks.lock(roomId)
	defer unlock()

	room, err := c.getRoom(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if room.OwnerId != userId {
		return nil, ErrForbidden("only the room owner can start the draw")
	}

	if !c.opts.AllowRedraw {
		exists, err := c.db.HasDrawResults(ctx, roomId)
		if err != nil {
			return nil, c.storageError(err, "check draw results")
		}
		if exists {
			return nil, ErrConflict("the draw for this room has already been completed")
		}
	}

	participants, err := c.db.ListParticipants(ctx, roomId)
	if err != nil {
		return nil, c.storageError(err, "list participants")
	}
	if err := drawPreconditions(participants); err != nil {
		return nil, err
	}

	givers := lo.Map(participants, func(p database.Participant, _ int) int { return p.UserId })
	receivers, err := draw.Derange(c.engine, givers)
	if err != nil {
		c.log.WithError(err).WithField("room_id", roomId).Warn("draw failed")
		return nil, ErrDrawImpossible(err)
	}

	letters := lo.SliceToMap(participants, func(p database.Participant) (int, int) {
		return p.UserId, *p.SelectedLetterId
	})
	assignments := make([]database.Assignment, len(givers))
	for i, giver := range givers {
		assignments[i] = database.Assignment{
			GiverId:    giver,
			ReceiverId: receivers[i],
			LetterId:   letters[receivers[i]],
		}
	}

	saved, err := c.db.SaveDraw(ctx, database.SaveDrawParams{
		RoomId:          roomId,
		DrawId:          uuid.NewString(),
		Participants:    givers,
		Assignments:     assignments,
		ReplaceExisting: c.opts.AllowRedraw,
		DrawnAt:         c.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrDrawStale):
			return nil, ErrConflict("the room changed while drawing, try again")
		case errors.Is(err, database.ErrDrawExists):
			return nil, ErrConflict("the draw for this room has already been completed")
		case errors.Is(err, database.ErrNotFound):
			return nil, ErrNotFound("room")
		default:
			return nil, c.storageError(err, "save draw")
		}
	}

	results := lo.Map(saved, func(d database.DrawResult, _ int) types.DrawResult { return drawResultFromDB(d) })

	c.stats.Incr(stats.DrawsCompleted)
	c.log.WithFields(logrus.Fields{"room_id": roomId, "participants": len(results)}).Info("draw completed")
	c.bus.Publish(roomId, NewDrawCompleted(roomId, results))

	return results, nil
}

func drawPreconditions(participants []database.Participant) error {
	names := func(ps []database.Participant) string {
		return strings.Join(lo.Map(ps, func(p database.Participant, _ int) string { return p.Name }), ", ")
	}

	if notReady := lo.Reject(participants, func(p database.Participant, _ int) bool { return p.IsReady }); len(notReady) > 0 {
		return ErrPreconditionFailed("not all participants are ready: %s", names(notReady))
	}
	if noLetter := lo.Reject(participants, func(p database.Participant, _ int) bool { return p.HasLetter() }); len(noLetter) > 0 {
		return ErrPreconditionFailed("not all participants have selected a letter: %s", names(noLetter))
	}
	if used := lo.Filter(participants, func(p database.Participant, _ int) bool { return p.LetterInUse }); len(used) > 0 {
		return ErrPreconditionFailed("letters already used in another draw: %s", names(used))
	}
	if len(participants) < 2 {
		return ErrPreconditionFailed("at least two participants are required")
	}

	return nil
}

func (c *Coordinator) GetRoomSnapshot(ctx context.Context, roomId, viewerId int) (types.Snapshot, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: viewerId})); err != nil {
		return types.Snapshot{}, err
	}

	room, err := c.getRoom(ctx, roomId)
	if err != nil {
		return types.Snapshot{}, err
	}

	return c.snapshot(ctx, room, viewerId)
}

// GetDrawResult returns the user's assignment in the room. ok is false when
// no draw has included the user.
func (c *Coordinator) GetDrawResult(ctx context.Context, roomId, userId int) (types.DrawResult, bool, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return types.DrawResult{}, false, err
	}

	d, err := c.db.GetDrawResult(ctx, roomId, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.DrawResult{}, false, nil
		}
		return types.DrawResult{}, false, c.storageError(err, "get draw result")
	}

	return drawResultFromDB(d), true, nil
}

// Subscribe registers sink for the room's events and returns its connection
// id. The sink receives a connected event before any other.
func (c *Coordinator) Subscribe(ctx context.Context, roomId, userId int, sink Sink) (string, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return "", err
	}

	unlock := c.locks.lock(roomId)
	defer unlock()

	if _, err := c.getRoom(ctx, roomId); err != nil {
		return "", err
	}
	if _, err := c.participant(ctx, roomId, userId); err != nil {
		return "", err
	}

	connId, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate connection id: %w", err)
	}

	if err := c.bus.Deliver(sink, NewConnected(roomId, connId)); err != nil {
		return "", fmt.Errorf("send connected event: %w", err)
	}
	c.registry.Register(roomId, connId, userId, sink)

	c.log.WithFields(logrus.Fields{"room_id": roomId, "user_id": userId, "conn_id": connId}).Info("subscribed")
	return connId, nil
}

func (c *Coordinator) Unsubscribe(roomId int, connId string) {
	if c.registry.Unregister(roomId, connId) {
		c.log.WithFields(logrus.Fields{"room_id": roomId, "conn_id": connId}).Info("unsubscribed")
	}
}

func (c *Coordinator) ListRooms(ctx context.Context, viewerId int) ([]types.RoomSummary, error) {
	if err := validationError(c.validate.Struct(user{UserId: viewerId})); err != nil {
		return nil, err
	}

	rooms, err := c.db.ListRooms(ctx, viewerId)
	if err != nil {
		return nil, c.storageError(err, "list rooms")
	}

	return lo.Map(rooms, func(r database.RoomSummary, _ int) types.RoomSummary {
		return types.RoomSummary{
			Id:               r.Id,
			Name:             r.Name,
			OwnerId:          r.OwnerId,
			OwnerName:        r.OwnerName,
			ParticipantCount: r.ParticipantCount,
			IsJoined:         r.IsJoined,
			CreatedAt:        r.CreatedAt,
		}
	}), nil
}

func (c *Coordinator) ListAvailableLetters(ctx context.Context, userId int) ([]types.Letter, error) {
	if err := validationError(c.validate.Struct(user{UserId: userId})); err != nil {
		return nil, err
	}

	letters, err := c.db.ListAvailableLetters(ctx, userId)
	if err != nil {
		return nil, c.storageError(err, "list letters")
	}

	return lo.Map(letters, func(l database.Letter, _ int) types.Letter {
		return types.Letter{Id: l.Id, Heading: l.Heading, Message: l.Message, CreatedAt: l.CreatedAt}
	}), nil
}

// ListGiverHistory returns every assignment the user has been given,
// newest first, including those of deleted rooms.
func (c *Coordinator) ListGiverHistory(ctx context.Context, userId int) ([]types.DrawResult, error) {
	if err := validationError(c.validate.Struct(user{UserId: userId})); err != nil {
		return nil, err
	}

	results, err := c.db.ListGiverResults(ctx, userId)
	if err != nil {
		return nil, c.storageError(err, "list draw history")
	}

	return lo.Map(results, func(d database.DrawResult, _ int) types.DrawResult { return drawResultFromDB(d) }), nil
}

// InviteCode returns a PNG QR code of the room's join link.
func (c *Coordinator) InviteCode(ctx context.Context, roomId, userId int) ([]byte, error) {
	if err := validationError(c.validate.Struct(roomUser{RoomId: roomId, UserId: userId})); err != nil {
		return nil, err
	}

	if _, err := c.getRoom(ctx, roomId); err != nil {
		return nil, err
	}
	if _, err := c.participant(ctx, roomId, userId); err != nil {
		return nil, err
	}

	link, err := c.InviteURL(roomId)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(link, qrcode.Medium, inviteCodeSize)
	if err != nil {
		return nil, fmt.Errorf("encode invite code: %w", err)
	}
	return png, nil
}

func (c *Coordinator) InviteURL(roomId int) (string, error) {
	link, err := url.JoinPath(c.opts.PublicURL, "rooms", strconv.Itoa(roomId), "join")
	if err != nil {
		return "", fmt.Errorf("build invite url: %w", err)
	}
	return link, nil
}

// Shutdown closes every open subscription.
func (c *Coordinator) Shutdown() {
	c.registry.Shutdown()
}

func (c *Coordinator) getRoom(ctx context.Context, roomId int) (database.Room, error) {
	room, err := c.db.GetRoom(ctx, roomId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Room{}, ErrNotFound("room")
		}
		return database.Room{}, c.storageError(err, "get room")
	}
	return room, nil
}

func (c *Coordinator) participant(ctx context.Context, roomId, userId int) (database.Participant, error) {
	participants, err := c.db.ListParticipants(ctx, roomId)
	if err != nil {
		return database.Participant{}, c.storageError(err, "list participants")
	}

	p, ok := lo.Find(participants, func(p database.Participant) bool { return p.UserId == userId })
	if !ok {
		return database.Participant{}, ErrForbidden("not a participant of this room")
	}
	return p, nil
}

// snapshot builds the room as seen by viewerId. A viewerId of 0 builds the
// shared view carried by events, which always lists the owner first.
func (c *Coordinator) snapshot(ctx context.Context, room database.Room, viewerId int) (types.Snapshot, error) {
	participants, err := c.db.ListParticipants(ctx, room.Id)
	if err != nil {
		return types.Snapshot{}, c.storageError(err, "list participants")
	}

	first := viewerId
	if c.opts.OwnerFirst || viewerId == 0 {
		first = room.OwnerId
	}

	views := lo.Map(participants, func(p database.Participant, _ int) types.Participant {
		return types.Participant{
			UserId:           p.UserId,
			Username:         p.Username,
			Name:             p.Name,
			IsReady:          p.IsReady,
			SelectedLetterId: p.SelectedLetterId,
			LetterHeading:    p.LetterHeading,
			IsOwner:          p.UserId == room.OwnerId,
			IsViewer:         viewerId != 0 && p.UserId == viewerId,
			JoinedAt:         p.JoinedAt,
		}
	})
	slices.SortStableFunc(views, func(a, b types.Participant) int {
		return rank(a.UserId, first) - rank(b.UserId, first)
	})

	return types.Snapshot{
		Room:              roomFromDB(room),
		Participants:      views,
		ReadyCount:        lo.CountBy(views, func(p types.Participant) bool { return p.IsReady }),
		TotalParticipants: len(views),
		LastUpdated:       c.now(),
	}, nil
}

func rank(userId, first int) int {
	if userId == first {
		return 0
	}
	return 1
}

// eventSnapshot builds the snapshot attached to an event. The mutation has
// already been committed, so a failure here only skips the event.
func (c *Coordinator) eventSnapshot(ctx context.Context, room database.Room) (types.Snapshot, bool) {
	snap, err := c.snapshot(ctx, room, 0)
	if err != nil {
		c.log.WithError(err).WithField("room_id", room.Id).Error("failed to build event snapshot")
		return types.Snapshot{}, false
	}
	return snap, true
}

func (c *Coordinator) storageError(err error, op string) error {
	c.log.WithError(err).WithField("op", op).Error("storage failure")
	return ErrStorage(fmt.Errorf("%s: %w", op, err))
}

func roomFromDB(r database.Room) types.Room {
	return types.Room{
		Id:        r.Id,
		Name:      r.Name,
		OwnerId:   r.OwnerId,
		OwnerName: r.OwnerName,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func drawResultFromDB(d database.DrawResult) types.DrawResult {
	return types.DrawResult{
		DrawId:        d.DrawId,
		RoomId:        d.RoomId,
		RoomName:      d.RoomName,
		GiverId:       d.GiverId,
		GiverName:     d.GiverName,
		ReceiverId:    d.ReceiverId,
		ReceiverName:  d.ReceiverName,
		LetterId:      d.LetterId,
		LetterHeading: d.LetterHeading,
		LetterMessage: d.LetterMessage,
		DrawnAt:       d.DrawnAt,
	}
}
