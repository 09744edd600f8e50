// Package mongo stores appointments and blackout windows in MongoDB. A
// partial unique index over active appointments backs up the key rule across
// processes.
package mongo

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const (
	appointmentsCollection = "appointments"
	blackoutsCollection    = "blackout_windows"
	activeSlotIndex        = "active_slot_uq"
)

type appointmentDoc struct {
	ID            string     `bson:"_id"`
	Date          string     `bson:"date"`
	Time          string     `bson:"time"`
	StylistID     string     `bson:"stylist_id"`
	CustomerID    string     `bson:"customer_id"`
	CustomerName  string     `bson:"customer_name,omitempty"`
	ContactNumber string     `bson:"contact_number,omitempty"`
	ServiceRefs   []string   `bson:"service_refs,omitempty"`
	TotalPrice    int64      `bson:"total_price"`
	TotalDuration int        `bson:"total_duration_minutes"`
	Notes         string     `bson:"notes,omitempty"`
	Status        string     `bson:"status"`
	Active        bool       `bson:"active"`
	CancelReason  string     `bson:"cancel_reason,omitempty"`
	CancelledAt   *time.Time `bson:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

type blackoutDoc struct {
	ID        string    `bson:"_id"`
	Date      string    `bson:"date"`
	Time      string    `bson:"time"`
	StylistID string    `bson:"stylist_id"`
	Reason    string    `bson:"reason,omitempty"`
	Kind      string    `bson:"kind"`
	CreatedAt time.Time `bson:"created_at"`
}

type Store struct {
	appointments *mongo.Collection
	blackouts    *mongo.Collection
	now          func() time.Time
}

var _ store.Repository = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{
		appointments: db.Collection(appointmentsCollection),
		blackouts:    db.Collection(blackoutsCollection),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes the store relies on. It is safe to run on
// every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.appointments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}, {Key: "stylist_id", Value: 1}},
			Options: options.Index().
				SetName(activeSlotIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("customer_date"),
		},
	})
	if err != nil {
		return store.Failure("create appointment indexes", err)
	}
	_, err = s.blackouts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}, {Key: "stylist_id", Value: 1}},
		Options: options.Index().SetName("date_stylist"),
	})
	if err != nil {
		return store.Failure("create blackout indexes", err)
	}
	return nil
}

func (s *Store) FindAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	q := bson.M{}
	if filter.ID != uuid.Nil {
		q["_id"] = filter.ID.String()
	}
	if filter.Date != "" {
		q["date"] = filter.Date
	}
	if filter.Time != "" {
		q["time"] = filter.Time
	}
	if filter.StylistID != "" {
		q["stylist_id"] = filter.StylistID
	}
	if filter.CustomerID != "" {
		q["customer_id"] = filter.CustomerID
	}
	if filter.ActiveOnly {
		q["active"] = true
	}

	cur, err := s.appointments.Find(ctx, q)
	if err != nil {
		return nil, store.Failure("find appointments", err)
	}
	var docs []appointmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, store.Failure("decode appointments", err)
	}

	out := make([]domain.Appointment, 0, len(docs))
	for _, d := range docs {
		a, err := d.toDomain()
		if err != nil {
			return nil, store.Failure("decode appointments", err)
		}
		out = append(out, a)
	}
	store.SortAppointments(out)
	return out, nil
}

func (s *Store) UpsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	now := s.now()
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, store.Failure("upsert appointment", err)
		}
		appt.ID = id
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	doc := appointmentFromDomain(appt)
	_, err := s.appointments.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, store.Failure("upsert appointment", err)
	}
	return appt, nil
}

// InsertAppointment never replaces a stored document. Both the _id index and
// active_slot_uq report duplicate keys, so the id is looked up to tell them
// apart.
func (s *Store) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	now := s.now()
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, store.Failure("insert appointment", err)
		}
		appt.ID = id
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	doc := appointmentFromDomain(appt)
	_, err := s.appointments.InsertOne(ctx, doc)
	if err == nil {
		return appt, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return domain.Appointment{}, store.Failure("insert appointment", err)
	}
	n, cerr := s.appointments.CountDocuments(ctx, bson.M{"_id": doc.ID})
	if cerr != nil {
		return domain.Appointment{}, store.Failure("insert appointment", cerr)
	}
	if n > 0 {
		return domain.Appointment{}, store.ErrExists
	}
	return domain.Appointment{}, store.ErrConflict
}

var allStylists = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(domain.StylistAll) + "$", Options: "i"}

func (s *Store) FindBlackouts(ctx context.Context, filter store.BlackoutFilter) ([]domain.BlackoutWindow, error) {
	q := bson.M{}
	if filter.ID != uuid.Nil {
		q["_id"] = filter.ID.String()
	}
	if filter.Date != "" {
		q["date"] = filter.Date
	}
	if filter.StylistID != "" {
		q["$or"] = bson.A{
			bson.M{"stylist_id": filter.StylistID},
			bson.M{"stylist_id": allStylists},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}})
	cur, err := s.blackouts.Find(ctx, q, opts)
	if err != nil {
		return nil, store.Failure("find blackouts", err)
	}
	var docs []blackoutDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, store.Failure("decode blackouts", err)
	}

	out := make([]domain.BlackoutWindow, 0, len(docs))
	for _, d := range docs {
		w, err := d.toDomain()
		if err != nil {
			return nil, store.Failure("decode blackouts", err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *Store) UpsertBlackout(ctx context.Context, w domain.BlackoutWindow) (domain.BlackoutWindow, error) {
	if w.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.BlackoutWindow{}, store.Failure("upsert blackout", err)
		}
		w.ID = id
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}

	doc := blackoutDoc{
		ID:        w.ID.String(),
		Date:      w.Date,
		Time:      w.Time,
		StylistID: w.StylistID,
		Reason:    w.Reason,
		Kind:      string(w.Kind),
		CreatedAt: w.CreatedAt,
	}
	if _, err := s.blackouts.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return domain.BlackoutWindow{}, store.Failure("upsert blackout", err)
	}
	return w, nil
}

func (s *Store) DeleteBlackout(ctx context.Context, id uuid.UUID) error {
	_, err := s.DeleteBlackouts(ctx, []uuid.UUID{id})
	return err
}

func (s *Store) DeleteBlackouts(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make(bson.A, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	res, err := s.blackouts.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return 0, store.Failure("delete blackouts", err)
	}
	return int(res.DeletedCount), nil
}

func appointmentFromDomain(a domain.Appointment) appointmentDoc {
	return appointmentDoc{
		ID:            a.ID.String(),
		Date:          a.Date,
		Time:          a.Time,
		StylistID:     a.StylistID,
		CustomerID:    a.CustomerID,
		CustomerName:  a.CustomerName,
		ContactNumber: a.ContactNumber,
		ServiceRefs:   a.ServiceRefs,
		TotalPrice:    a.TotalPrice,
		TotalDuration: a.TotalDuration,
		Notes:         a.Notes,
		Status:        string(a.Status),
		Active:        a.Active(),
		CancelReason:  a.CancelReason,
		CancelledAt:   a.CancelledAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func (d appointmentDoc) toDomain() (domain.Appointment, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	return domain.Appointment{
		ID:            id,
		Date:          d.Date,
		Time:          d.Time,
		StylistID:     d.StylistID,
		CustomerID:    d.CustomerID,
		CustomerName:  d.CustomerName,
		ContactNumber: d.ContactNumber,
		ServiceRefs:   d.ServiceRefs,
		TotalPrice:    d.TotalPrice,
		TotalDuration: d.TotalDuration,
		Notes:         d.Notes,
		Status:        domain.AppointmentStatus(d.Status),
		CancelReason:  d.CancelReason,
		CancelledAt:   d.CancelledAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

func (d blackoutDoc) toDomain() (domain.BlackoutWindow, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.BlackoutWindow{}, err
	}
	return domain.BlackoutWindow{
		ID:        id,
		Date:      d.Date,
		Time:      d.Time,
		StylistID: d.StylistID,
		Reason:    d.Reason,
		Kind:      domain.BlackoutKind(d.Kind),
		CreatedAt: d.CreatedAt,
	}, nil
}
