package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

type commissionRuleRepository struct {
	sessionRepository
	rules *mongo.Collection
	rates *mongo.Collection
}

func newCommissionRuleRepository(database *mongo.Database) *commissionRuleRepository {
	return &commissionRuleRepository{
		rules: database.Collection(collectionRules),
		rates: database.Collection(collectionRates),
	}
}

// Save upserts the rule; its rate is inserted once and never rewritten
func (r *commissionRuleRepository) Save(ctx context.Context, rule *aggregate.CommissionRule) error {
	ctx = r.getContext(ctx)

	rate := newRateDocument(rule.Rate())
	_, err := r.rates.UpdateOne(ctx,
		bson.M{"_id": rate.ID},
		bson.M{"$setOnInsert": rate},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return mapError(err, "failed to save commission rate %s", rate.ID)
	}

	doc := newRuleDocument(rule)
	_, err = r.rules.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return mapError(err, "failed to save commission rule %s", doc.ID)
}

func (r *commissionRuleRepository) GetByID(ctx context.Context, id string) (*aggregate.CommissionRule, error) {
	ctx = r.getContext(ctx)

	var doc ruleDocument
	if err := r.rules.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapError(err, "commission rule %s", id)
	}
	rules, err := r.withRates(ctx, []ruleDocument{doc})
	if err != nil {
		return nil, err
	}
	return rules[0], nil
}

func (r *commissionRuleRepository) FindActive(ctx context.Context, q repository.RuleQuery) ([]*aggregate.CommissionRule, error) {
	ctx = r.getContext(ctx)

	targets := bson.A{
		bson.M{"reference": string(aggregate.RuleReferenceGlobal)},
		bson.M{"reference": string(aggregate.RuleReferenceSeller), "reference_id": q.SellerID},
		bson.M{"reference": string(aggregate.RuleReferenceProduct), "reference_id": q.ProductID},
	}
	if len(q.CategoryIDs) > 0 {
		targets = append(targets, bson.M{
			"reference":    string(aggregate.RuleReferenceCategory),
			"reference_id": bson.M{"$in": q.CategoryIDs},
		})
	}
	filter := bson.M{"is_active": true, "$or": targets}

	cursor, err := r.rules.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapError(err, "failed to find active commission rules")
	}
	var docs []ruleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode commission rules")
	}
	return r.withRates(ctx, docs)
}

func (r *commissionRuleRepository) List(ctx context.Context, offset, limit int) ([]*aggregate.CommissionRule, error) {
	ctx = r.getContext(ctx)

	opts := options.Find().
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.rules.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapError(err, "failed to list commission rules")
	}
	var docs []ruleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode commission rules")
	}
	return r.withRates(ctx, docs)
}

// withRates loads the rate versions the rules point at in one query
func (r *commissionRuleRepository) withRates(ctx context.Context, docs []ruleDocument) ([]*aggregate.CommissionRule, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.RateID)
	}

	cursor, err := r.rates.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, mapError(err, "failed to load commission rates")
	}
	var rateDocs []rateDocument
	if err := cursor.All(ctx, &rateDocs); err != nil {
		return nil, mapError(err, "failed to decode commission rates")
	}
	rates := make(map[string]*aggregate.CommissionRate, len(rateDocs))
	for _, doc := range rateDocs {
		rates[doc.ID] = doc.toAggregate()
	}

	rules := make([]*aggregate.CommissionRule, 0, len(docs))
	for _, doc := range docs {
		rate, ok := rates[doc.RateID]
		if !ok {
			return nil, fmt.Errorf("commission rule %s references missing rate %s", doc.ID, doc.RateID)
		}
		rules = append(rules, doc.toAggregate(rate))
	}
	return rules, nil
}

type commissionLineRepository struct {
	sessionRepository
	lines *mongo.Collection
}

func newCommissionLineRepository(database *mongo.Database) *commissionLineRepository {
	return &commissionLineRepository{lines: database.Collection(collectionLines)}
}

// Create relies on the partial unique index over active item lines
func (r *commissionLineRepository) Create(ctx context.Context, line *aggregate.CommissionLine) error {
	_, err := r.lines.InsertOne(r.getContext(ctx), newLineDocument(line))
	return mapError(err, "failed to create commission line for item line %s", line.ItemLineID())
}

func (r *commissionLineRepository) Save(ctx context.Context, line *aggregate.CommissionLine) error {
	doc := newLineDocument(line)
	res, err := r.lines.ReplaceOne(r.getContext(ctx), bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return mapError(err, "failed to save commission line %s", doc.ID)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("commission line %s: %w", doc.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *commissionLineRepository) GetActiveByItemLineID(ctx context.Context, itemLineID string) (*aggregate.CommissionLine, error) {
	var doc lineDocument
	err := r.lines.FindOne(r.getContext(ctx), bson.M{"item_line_id": itemLineID, "deleted": false}).Decode(&doc)
	if err != nil {
		return nil, mapError(err, "commission for item line %s", itemLineID)
	}
	return doc.toAggregate(), nil
}

func (r *commissionLineRepository) ListByOrderID(ctx context.Context, orderID string, includeDeleted bool) ([]*aggregate.CommissionLine, error) {
	ctx = r.getContext(ctx)

	filter := bson.M{"order_id": orderID}
	if !includeDeleted {
		filter["deleted"] = false
	}
	cursor, err := r.lines.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapError(err, "failed to list commission lines of order %s", orderID)
	}
	var docs []lineDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err, "failed to decode commission lines")
	}
	lines := make([]*aggregate.CommissionLine, 0, len(docs))
	for _, doc := range docs {
		lines = append(lines, doc.toAggregate())
	}
	return lines, nil
}
