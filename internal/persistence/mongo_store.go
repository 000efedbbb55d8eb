package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/retrofit/pkg/api"
)

// MongoStore is a ProgramStore and ParticipantStore backed by MongoDB.
// Programs and participants live in separate collections; status history
// is embedded in the participant document and only ever grows via $push.
type MongoStore struct {
	programs     *mongo.Collection
	participants *mongo.Collection
}

var _ ProgramStore = (*MongoStore)(nil)

var _ ParticipantStore = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed store. dbName defaults to
// "retrofit" if empty.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "retrofit"
	}
	db := client.Database(dbName)
	return &MongoStore{
		programs:     db.Collection("programs"),
		participants: db.Collection("participants"),
	}
}

type mongoProgramDoc struct {
	ID           string                `bson:"_id"`
	Name         string                `bson:"name"`
	Abbreviation string                `bson:"abbreviation"`
	StartDate    string                `bson:"start_date"`
	EndDate      string                `bson:"end_date"`
	IsActive     bool                  `bson:"is_active"`
	Steps        api.ProgramStepConfig `bson:"steps"`
}

type mongoHistoryDoc struct {
	Status     string `bson:"status"`
	AssignedTo string `bson:"assigned_to,omitempty"`
	Notes      string `bson:"notes,omitempty"`
	UpdatedAt  int64  `bson:"updated_at"`
	UpdatedBy  string `bson:"updated_by"`
}

type mongoParticipantDoc struct {
	ID              string            `bson:"_id"`
	ProgramID       string            `bson:"program_id"`
	FirstName       string            `bson:"first_name"`
	LastName        string            `bson:"last_name"`
	Email           string            `bson:"email"`
	Phone           string            `bson:"phone"`
	Address         string            `bson:"address"`
	City            string            `bson:"city"`
	PostalCode      string            `bson:"postal_code"`
	PropertyType    string            `bson:"property_type"`
	AssignedAdvisor string            `bson:"assigned_advisor"`
	Priority        string            `bson:"priority"`
	Status          string            `bson:"status"`
	OnHold          bool              `bson:"on_hold"`
	PreHoldStatus   string            `bson:"pre_hold_status"`
	History         []mongoHistoryDoc `bson:"history"`
	CreatedAt       int64             `bson:"created_at"`
	CompletedAt     *int64            `bson:"completed_at,omitempty"`
	Version         int64             `bson:"version"`
}

func toProgramDoc(prog api.Program) mongoProgramDoc {
	return mongoProgramDoc{
		ID:           prog.ID,
		Name:         prog.Name,
		Abbreviation: prog.Abbreviation,
		StartDate:    prog.StartDate,
		EndDate:      prog.EndDate,
		IsActive:     prog.IsActive,
		Steps:        prog.Steps,
	}
}

func (d mongoProgramDoc) program() api.Program {
	return api.Program{
		ID:           d.ID,
		Name:         d.Name,
		Abbreviation: d.Abbreviation,
		StartDate:    d.StartDate,
		EndDate:      d.EndDate,
		IsActive:     d.IsActive,
		Steps:        d.Steps,
	}
}

func toHistoryDocs(entries []api.ParticipantStatusUpdate) []mongoHistoryDoc {
	out := make([]mongoHistoryDoc, 0, len(entries))
	for _, u := range entries {
		out = append(out, mongoHistoryDoc{
			Status:     string(u.Status),
			AssignedTo: u.AssignedTo,
			Notes:      u.Notes,
			UpdatedAt:  u.UpdatedAt.UnixNano(),
			UpdatedBy:  u.UpdatedBy,
		})
	}
	return out
}

func toParticipantDoc(p *api.Participant) mongoParticipantDoc {
	doc := mongoParticipantDoc{
		ID:              p.ID,
		ProgramID:       p.ProgramID,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Email:           p.Email,
		Phone:           p.Phone,
		Address:         p.Address,
		City:            p.City,
		PostalCode:      p.PostalCode,
		PropertyType:    p.PropertyType,
		AssignedAdvisor: p.AssignedAdvisor,
		Priority:        string(p.Priority),
		Status:          string(p.Status),
		OnHold:          p.OnHold,
		PreHoldStatus:   string(p.PreHoldStatus),
		History:         toHistoryDocs(p.StatusHistory),
		CreatedAt:       p.CreatedAt.UnixNano(),
		Version:         p.Version,
	}
	if p.CompletedAt != nil {
		n := p.CompletedAt.UnixNano()
		doc.CompletedAt = &n
	}
	return doc
}

func (d mongoParticipantDoc) participant() *api.Participant {
	p := &api.Participant{
		ID:              d.ID,
		ProgramID:       d.ProgramID,
		FirstName:       d.FirstName,
		LastName:        d.LastName,
		Email:           d.Email,
		Phone:           d.Phone,
		Address:         d.Address,
		City:            d.City,
		PostalCode:      d.PostalCode,
		PropertyType:    d.PropertyType,
		AssignedAdvisor: d.AssignedAdvisor,
		Priority:        api.Priority(d.Priority),
		Status:          api.ParticipantStatus(d.Status),
		OnHold:          d.OnHold,
		PreHoldStatus:   api.ParticipantStatus(d.PreHoldStatus),
		CreatedAt:       time.Unix(0, d.CreatedAt),
		Version:         d.Version,
	}
	if d.CompletedAt != nil {
		t := time.Unix(0, *d.CompletedAt)
		p.CompletedAt = &t
	}
	for _, h := range d.History {
		p.StatusHistory = append(p.StatusHistory, api.ParticipantStatusUpdate{
			Status:     api.ParticipantStatus(h.Status),
			AssignedTo: h.AssignedTo,
			Notes:      h.Notes,
			UpdatedAt:  time.Unix(0, h.UpdatedAt),
			UpdatedBy:  h.UpdatedBy,
		})
	}
	return p
}

func (s *MongoStore) SaveProgram(ctx context.Context, prog api.Program) error {
	_, err := s.programs.InsertOne(ctx, toProgramDoc(prog))
	if mongo.IsDuplicateKeyError(err) {
		return ErrProgramExists
	}
	return err
}

func (s *MongoStore) UpdateProgram(ctx context.Context, prog api.Program) error {
	res, err := s.programs.ReplaceOne(ctx, bson.M{"_id": prog.ID}, toProgramDoc(prog))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrProgramNotFound
	}
	return nil
}

func (s *MongoStore) GetProgram(ctx context.Context, id string) (api.Program, error) {
	var doc mongoProgramDoc
	err := s.programs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return api.Program{}, ErrProgramNotFound
		}
		return api.Program{}, err
	}
	return doc.program(), nil
}

func (s *MongoStore) ListPrograms(ctx context.Context) ([]api.Program, error) {
	cur, err := s.programs.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.Program
	for cur.Next(ctx) {
		var doc mongoProgramDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.program())
	}
	return out, cur.Err()
}

func (s *MongoStore) SaveParticipant(ctx context.Context, p *api.Participant) error {
	_, err := s.participants.InsertOne(ctx, toParticipantDoc(p))
	if mongo.IsDuplicateKeyError(err) {
		return ErrParticipantExists
	}
	return err
}

func (s *MongoStore) UpdateParticipant(ctx context.Context, p *api.Participant, expectedVersion int64) error {
	var cur mongoParticipantDoc
	err := s.participants.FindOne(ctx, bson.M{"_id": p.ID}).Decode(&cur)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrParticipantNotFound
		}
		return err
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	if len(p.StatusHistory) < len(cur.History) {
		return ErrHistoryRewrite
	}

	doc := toParticipantDoc(p)
	set := bson.M{
		"program_id":       doc.ProgramID,
		"first_name":       doc.FirstName,
		"last_name":        doc.LastName,
		"email":            doc.Email,
		"phone":            doc.Phone,
		"address":          doc.Address,
		"city":             doc.City,
		"postal_code":      doc.PostalCode,
		"property_type":    doc.PropertyType,
		"assigned_advisor": doc.AssignedAdvisor,
		"priority":         doc.Priority,
		"status":           doc.Status,
		"on_hold":          doc.OnHold,
		"pre_hold_status":  doc.PreHoldStatus,
		"version":          doc.Version,
	}
	update := bson.M{"$set": set}
	if doc.CompletedAt != nil {
		set["completed_at"] = *doc.CompletedAt
	} else {
		update["$unset"] = bson.M{"completed_at": ""}
	}
	if added := doc.History[len(cur.History):]; len(added) > 0 {
		update["$push"] = bson.M{"history": bson.M{"$each": added}}
	}

	// The version in the filter makes the write conditional on nobody
	// having updated the document since it was read.
	res, err := s.participants.UpdateOne(ctx, bson.M{"_id": p.ID, "version": expectedVersion}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *MongoStore) GetParticipant(ctx context.Context, id string) (*api.Participant, error) {
	var doc mongoParticipantDoc
	err := s.participants.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return doc.participant(), nil
}

func (s *MongoStore) ListParticipants(ctx context.Context, filter ParticipantFilter) ([]*api.Participant, error) {
	bfilter := bson.M{}
	if filter.ProgramID != "" {
		bfilter["program_id"] = filter.ProgramID
	}
	if filter.Status != "" {
		bfilter["status"] = string(filter.Status)
	}
	if filter.OnHold != nil {
		bfilter["on_hold"] = *filter.OnHold
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.participants.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*api.Participant
	for cur.Next(ctx) {
		var doc mongoParticipantDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.participant())
	}
	return out, cur.Err()
}
