package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/report"
)

type BlockRepository struct {
	col *mongo.Collection
}

func NewBlockRepository(db *mongo.Database) *BlockRepository {
	return &BlockRepository{col: db.Collection(colBlocks)}
}

func blockID(actorID, targetID string) string {
	return actorID + "|" + targetID
}

func (r *BlockRepository) Get(ctx context.Context, actorID, targetID string) (*block.Entry, error) {
	var doc blockDocument
	err := r.col.FindOne(ctx, bson.M{"_id": blockID(actorID, targetID)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "load block entry", nil)
	}
	return doc.toAggregate(), nil
}

func (r *BlockRepository) ListByActor(ctx context.Context, actorID string) ([]*block.Entry, error) {
	cur, err := r.col.Find(ctx, bson.M{"actor_id": actorID})
	if err != nil {
		return nil, classify(err, "list block entries", nil)
	}
	var docs []blockDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err, "decode block entries", nil)
	}
	out := make([]*block.Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func (r *BlockRepository) Save(ctx context.Context, e *block.Entry) error {
	doc := blockDocument{
		ID:        blockID(e.ActorID, e.TargetID),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Blocked:   e.Blocked,
		UpdatedAt: toMillis(e.UpdatedAt),
		Version:   e.Version + 1,
	}
	filter := bson.M{"_id": doc.ID, "version": e.Version}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err := saveResult(res, err, "save block entry"); err != nil {
		return err
	}
	e.Version = doc.Version
	return nil
}

type blockDocument struct {
	ID        string `bson:"_id"`
	ActorID   string `bson:"actor_id"`
	TargetID  string `bson:"target_id"`
	Blocked   bool   `bson:"blocked"`
	UpdatedAt int64  `bson:"updated_at"`
	Version   int64  `bson:"version"`
}

func (d blockDocument) toAggregate() *block.Entry {
	return &block.Entry{ActorID: d.ActorID, TargetID: d.TargetID, Blocked: d.Blocked, UpdatedAt: fromMillis(d.UpdatedAt), Version: d.Version}
}

type ReportRepository struct {
	col *mongo.Collection
}

func NewReportRepository(db *mongo.Database) *ReportRepository {
	return &ReportRepository{col: db.Collection(colReports)}
}

func (r *ReportRepository) ByID(ctx context.Context, id report.ID) (*report.Report, error) {
	var doc reportDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, classify(err, "load report", report.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *ReportRepository) List(ctx context.Context, status report.Status) ([]*report.Report, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "list reports", nil)
	}
	var docs []reportDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err, "decode reports", nil)
	}
	out := make([]*report.Report, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func (r *ReportRepository) Save(ctx context.Context, rep *report.Report) error {
	doc := reportDocument{
		ID:             string(rep.ID),
		ReporterID:     rep.ReporterID,
		ConversationID: string(rep.ConversationID),
		ReportedUserID: rep.ReportedUserID,
		ItemID:         rep.ItemID,
		Category:       string(rep.Category),
		Description:    rep.Description,
		Status:         string(rep.Status),
		ResolvedBy:     rep.ResolvedBy,
		Action:         string(rep.Action),
		AdminNotes:     rep.AdminNotes,
		CreatedAt:      toMillis(rep.CreatedAt),
		UpdatedAt:      toMillis(rep.UpdatedAt),
		Version:        rep.Version + 1,
	}
	filter := bson.M{"_id": doc.ID, "version": rep.Version}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err := saveResult(res, err, "save report"); err != nil {
		return err
	}
	rep.Version = doc.Version
	return nil
}

type reportDocument struct {
	ID             string `bson:"_id"`
	ReporterID     string `bson:"reporter_id"`
	ConversationID string `bson:"conversation_id"`
	ReportedUserID string `bson:"reported_user_id"`
	ItemID         string `bson:"item_id,omitempty"`
	Category       string `bson:"category"`
	Description    string `bson:"description"`
	Status         string `bson:"status"`
	ResolvedBy     string `bson:"resolved_by,omitempty"`
	Action         string `bson:"action,omitempty"`
	AdminNotes     string `bson:"admin_notes,omitempty"`
	CreatedAt      int64  `bson:"created_at"`
	UpdatedAt      int64  `bson:"updated_at"`
	Version        int64  `bson:"version"`
}

func (d reportDocument) toAggregate() *report.Report {
	return &report.Report{
		ID:             report.ID(d.ID),
		ReporterID:     d.ReporterID,
		ConversationID: conversation.ID(d.ConversationID),
		ReportedUserID: d.ReportedUserID,
		ItemID:         d.ItemID,
		Category:       report.Category(d.Category),
		Description:    d.Description,
		Status:         report.Status(d.Status),
		ResolvedBy:     d.ResolvedBy,
		Action:         report.Action(d.Action),
		AdminNotes:     d.AdminNotes,
		CreatedAt:      fromMillis(d.CreatedAt),
		UpdatedAt:      fromMillis(d.UpdatedAt),
		Version:        d.Version,
	}
}

var (
	_ block.Repository  = (*BlockRepository)(nil)
	_ report.Repository = (*ReportRepository)(nil)
)
