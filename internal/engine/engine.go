package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Event is a notification emitted as the engine mutates the graph, for
// activity feeds and debugging.
type Event struct {
	Type    string    `json:"type"`
	OwnerID string    `json:"owner_id"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// EventFunc receives engine events. Implementations must not block.
type EventFunc func(Event)

// Options tunes the engine. Zero values get sensible defaults.
type Options struct {
	// UnderstandTimeout bounds the external extraction call during
	// ingestion. The local extractors always run; the collaborator only
	// refines their output when it answers in time.
	UnderstandTimeout time.Duration

	// QueueSize and Workers size the background ingestion queue.
	QueueSize int
	Workers   int
}

func (o *Options) applyDefaults() {
	if o.UnderstandTimeout <= 0 {
		o.UnderstandTimeout = 10 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 128
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
}

// Engine is the entity memory graph: it ingests notes, maintains
// entities, facts, relationships, and inferences, and runs the periodic
// maintenance passes.
type Engine struct {
	store      storage.Store
	embeddings storage.EmbeddingProvider
	cache      *OwnerCache
	detector   ChangeClassifier
	superseder *Superseder

	understander llm.Understander

	decay        *DecayScheduler
	classifier   *Classifier
	consolidator *Consolidator
	inference    *InferenceEngine

	opts    Options
	log     *zap.SugaredLogger
	onEvent EventFunc

	queue     chan ingestTask
	done      chan struct{}
	wg        sync.WaitGroup
	retryWG   sync.WaitGroup
	closeOnce sync.Once
}

// Collaborators bundles the optional external helpers. Any of them may
// be nil; the engine degrades to its local heuristics.
type Collaborators struct {
	Understander llm.Understander
	Compressor   llm.Compressor
	Reasoner     llm.Reasoner
	Rater        llm.ImportanceRater
	Embedder     llm.EmbeddingGenerator
}

// New wires an engine over the given store. embeddings may be nil when
// the backend has no vector support.
func New(store storage.Store, embeddings storage.EmbeddingProvider, collab Collaborators, opts Options, log *zap.SugaredLogger) (*Engine, error) {
	opts.applyDefaults()

	cache, err := NewOwnerCache(store)
	if err != nil {
		return nil, fmt.Errorf("owner cache: %w", err)
	}

	e := &Engine{
		store:        store,
		embeddings:   embeddings,
		cache:        cache,
		detector:     NewPatternClassifier(),
		superseder:   NewSuperseder(store, log),
		understander: collab.Understander,
		decay:        NewDecayScheduler(store, log),
		classifier:   NewClassifier(store, collab.Rater, log),
		consolidator: NewConsolidator(store, collab.Compressor, collab.Embedder, embeddings, log),
		inference:    NewInferenceEngine(store, collab.Reasoner, log),
		opts:         opts,
		log:          log,
		queue:        make(chan ingestTask, opts.QueueSize),
		done:         make(chan struct{}),
	}
	e.startWorkers()
	return e, nil
}

// SetEventFunc installs the event callback. Call before serving traffic.
func (e *Engine) SetEventFunc(fn EventFunc) { e.onEvent = fn }

func (e *Engine) emit(eventType, ownerID, detail string) {
	if e.onEvent == nil {
		return
	}
	e.onEvent(Event{Type: eventType, OwnerID: ownerID, Detail: detail, At: time.Now()})
}

// Close drains the background queue and shuts the workers down. The
// queue channel is never closed; workers and pending retries stop via
// the done channel, so a straggling re-send can never panic.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
		e.retryWG.Wait()
	})
}

// IngestRequest is one note to absorb into the graph.
type IngestRequest struct {
	OwnerID    string `json:"owner_id"`
	Text       string `json:"text"`
	SourceType string `json:"source_type,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
}

// IngestResult reports what one note changed.
type IngestResult struct {
	NoteID        string         `json:"note_id"`
	Entities      []types.Entity `json:"entities"`
	NewEntities   int            `json:"new_entities"`
	Facts         int            `json:"facts"`
	Relationships int            `json:"relationships"`
	Supersessions int            `json:"supersessions"`
}

// candidate is the merged view of one mentioned entity from all
// extraction paths.
type candidate struct {
	name         string
	kind         types.EntityKind
	relationship string
	context      string
	sentiment    string
}

// Ingest absorbs one note: persist it, find entity mentions, detect and
// apply state changes, and upsert relationships with their derived
// facts. The external collaborator is consulted best-effort; the local
// extractors carry the pipeline when it is absent or slow.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	text := strings.TrimSpace(req.Text)
	if req.OwnerID == "" || text == "" {
		return nil, fmt.Errorf("%w: owner_id and text are required", storage.ErrInvalidInput)
	}
	now := time.Now().UTC()

	note := &types.Note{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Text:       text,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
	}
	if err := e.store.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("persist note: %w", err)
	}
	result := &IngestResult{NoteID: note.ID}

	known, err := e.cache.Known(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load known entities: %w", err)
	}

	// Change detection runs against the pre-ingest entity set so a
	// "Sarah left Acme" note is matched against the Sarah we already
	// know about.
	changes := e.detector.Detect(text, known)

	localCands, localRels := ExtractLocal(text)
	merged, rels, collabChanges := e.mergeExtractions(ctx, text, known, localCands, localRels)

	// Collaborator-flagged changes the local patterns missed join the
	// queue; a (name, type) pair the patterns already caught is not
	// applied twice.
	flagged := make(map[string]bool, len(changes))
	for _, ch := range changes {
		flagged[strings.ToLower(ch.EntityName)+"|"+string(ch.Type)] = true
	}
	for _, ch := range collabChanges {
		if key := strings.ToLower(ch.EntityName) + "|" + string(ch.Type); !flagged[key] {
			flagged[key] = true
			changes = append(changes, ch)
		}
	}

	touched := make(map[string]*types.Entity, len(merged))
	for _, c := range merged {
		ent, created, err := e.absorbMention(ctx, req.OwnerID, c, now)
		if err != nil {
			e.log.Warnw("failed to absorb mention", "name", c.name, "error", err)
			continue
		}
		if ent == nil {
			// Dismissed name; leave no trace.
			continue
		}
		if created {
			result.NewEntities++
			e.emit("entity.created", req.OwnerID, ent.Name)
		}
		touched[strings.ToLower(ent.Name)] = ent
		result.Entities = append(result.Entities, *ent)
	}

	for _, ch := range changes {
		applied, err := e.applyChange(ctx, req.OwnerID, ch, now, touched)
		if err != nil {
			e.log.Warnw("failed to apply change", "entity", ch.EntityName, "error", err)
			continue
		}
		if applied && ch.Type.Supersedes() {
			result.Supersessions++
			e.emit("entity.superseded", req.OwnerID,
				fmt.Sprintf("%s: %s", ch.EntityName, ch.Type))
		}
	}

	for _, r := range rels {
		n, err := e.upsertRelationship(ctx, req.OwnerID, r, touched, now)
		if err != nil {
			e.log.Warnw("failed to upsert relationship",
				"subject", r.Subject, "predicate", r.Predicate, "error", err)
			continue
		}
		result.Relationships += n
		result.Facts += n
	}

	e.cache.Invalidate(req.OwnerID)
	e.emit("note.ingested", req.OwnerID, note.ID)
	return result, nil
}

// mergeExtractions combines the local lexical candidates with the
// external collaborator's extraction, keyed by lowercased name. The
// collaborator's richer fields win on overlap. Its explicit change
// detections come back as the third result.
func (e *Engine) mergeExtractions(ctx context.Context, text string, known []types.Entity, localCands []LocalCandidate, localRels []LocalRelationship) (map[string]candidate, []llm.ExtractedRelationship, []ChangeCandidate) {
	merged := make(map[string]candidate, len(localCands))
	for _, lc := range localCands {
		merged[strings.ToLower(lc.Name)] = candidate{
			name:         lc.Name,
			kind:         lc.Kind,
			relationship: lc.Relationship,
			context:      lc.Context,
		}
	}

	rels := make([]llm.ExtractedRelationship, 0, len(localRels))
	for _, lr := range localRels {
		rels = append(rels, llm.ExtractedRelationship{
			Subject:    lr.Subject,
			Predicate:  lr.Predicate,
			Object:     lr.Object,
			Confidence: 0.7,
		})
	}

	if e.understander == nil {
		return merged, rels, nil
	}

	names := make([]string, 0, len(known))
	for _, k := range known {
		names = append(names, k.Name)
	}
	uctx, cancel := context.WithTimeout(ctx, e.opts.UnderstandTimeout)
	defer cancel()
	res, err := e.understander.Understand(uctx, llm.UnderstandRequest{Text: text, KnownEntities: names})
	if err != nil {
		e.log.Debugw("extraction collaborator unavailable, using local results", "error", err)
		return merged, rels, nil
	}

	for _, ee := range res.Entities {
		name := strings.TrimSpace(ee.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		c := merged[key]
		c.name = name
		if ee.Type != "" {
			c.kind = types.EntityKind(ee.Type)
		}
		if ee.Relationship != "" {
			c.relationship = ee.Relationship
		}
		if ee.Context != "" {
			c.context = ee.Context
		}
		c.sentiment = ee.Sentiment
		if !c.kind.Valid() {
			c.kind = types.KindOther
		}
		merged[key] = c
	}

	seen := make(map[string]bool, len(rels))
	for _, r := range rels {
		seen[relKey(r.Subject, r.Predicate, r.Object)] = true
	}
	for _, r := range res.Relationships {
		if r.Subject == "" || r.Predicate == "" || r.Object == "" {
			continue
		}
		if key := relKey(r.Subject, r.Predicate, r.Object); !seen[key] {
			seen[key] = true
			rels = append(rels, r)
		}
	}

	// The collaborator's explicit change detections feed the same
	// supersession path as the local patterns. Nameless or unknown
	// change types are dropped; applyChange filters unknown and
	// dismissed entity names.
	var changes []ChangeCandidate
	for _, dc := range res.ChangesDetected {
		name := strings.TrimSpace(dc.EntityName)
		ct := ChangeType(strings.ToLower(strings.TrimSpace(dc.ChangeType)))
		if name == "" || !ct.Valid() {
			continue
		}
		changes = append(changes, ChangeCandidate{
			EntityName:  name,
			Type:        ct,
			MatchedText: dc.Description,
			NewValue:    dc.NewValue,
			Context:     dc.Description,
		})
	}
	return merged, rels, changes
}

func relKey(subject, predicate, object string) string {
	return strings.ToLower(subject) + "|" + predicate + "|" + strings.ToLower(object)
}

// applyMention folds one mention into an existing record. Persistence is
// the caller's job.
func applyMention(ent *types.Entity, c candidate, now time.Time) {
	ent.MentionCount++
	ent.LastMentionedAt = now
	ent.AppendContextNote(c.context)
	if ent.Relationship == "" && c.relationship != "" {
		ent.Relationship = c.relationship
	}
}

// absorbMention records one entity mention: increment an existing active
// record additively, revive the newest archived record when no active
// one exists, or create a fresh one. Names with any dismissed record are
// skipped entirely; dismissal is sticky against every automated write.
// The returned entity is nil for skipped names.
func (e *Engine) absorbMention(ctx context.Context, ownerID string, c candidate, now time.Time) (*types.Entity, bool, error) {
	versions, err := e.store.EntitiesByName(ctx, ownerID, c.name)
	if err != nil {
		return nil, false, err
	}
	for _, v := range versions {
		if v.Status == types.StatusDismissed {
			return nil, false, nil
		}
	}

	ent, err := e.store.ActiveEntityByName(ctx, ownerID, c.name)
	switch {
	case err == nil:
		applyMention(ent, c, now)
		if err := e.store.UpdateEntity(ctx, ent); err != nil {
			return nil, false, err
		}
		if err := e.decay.RefreshEntity(ctx, ent.ID, now); err != nil {
			e.log.Warnw("failed to refresh decay clock", "entity", ent.Name, "error", err)
		}
		return ent, false, nil

	case errorsIsNotFound(err):
		// A mention of an archived name revives the newest archived
		// record rather than forking a duplicate with no history.
		// versions is newest first, so the first archived hit wins.
		for i := range versions {
			if versions[i].Status != types.StatusArchived {
				continue
			}
			if err := e.decay.RefreshEntity(ctx, versions[i].ID, now); err != nil {
				return nil, false, err
			}
			revived, err := e.store.GetEntity(ctx, versions[i].ID)
			if err != nil {
				return nil, false, err
			}
			applyMention(revived, c, now)
			if err := e.store.UpdateEntity(ctx, revived); err != nil {
				return nil, false, err
			}
			return revived, false, nil
		}

		kind := c.kind
		if !kind.Valid() {
			kind = types.KindOther
		}
		ent := &types.Entity{
			ID:               uuid.NewString(),
			OwnerID:          ownerID,
			Name:             c.name,
			Kind:             kind,
			Relationship:     c.relationship,
			MentionCount:     1,
			FirstMentionedAt: now,
			LastMentionedAt:  now,
			Status:           types.StatusActive,
		}
		ent.AppendContextNote(c.context)
		// Importance stays at the store default until the next
		// classification pass has mention history to work with.
		if err := e.store.CreateEntity(ctx, ent); err != nil {
			return nil, false, err
		}
		return ent, true, nil

	default:
		return nil, false, err
	}
}

// applyChange routes a detected change: supersession-worthy types spawn
// a new entity version; additive status updates append context only.
// Changes against unknown or dismissed names are dropped. Reports
// whether anything was written.
func (e *Engine) applyChange(ctx context.Context, ownerID string, ch ChangeCandidate, now time.Time, touched map[string]*types.Entity) (bool, error) {
	versions, err := e.store.EntitiesByName(ctx, ownerID, ch.EntityName)
	if err != nil {
		return false, err
	}
	if len(versions) == 0 {
		return false, nil
	}
	for _, v := range versions {
		if v.Status == types.StatusDismissed {
			return false, nil
		}
	}

	if !ch.Type.Supersedes() {
		ent, err := e.store.ActiveEntityByName(ctx, ownerID, ch.EntityName)
		if err != nil {
			if errorsIsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		ent.AppendContextNote(ch.MatchedText)
		if err := e.store.UpdateEntity(ctx, ent); err != nil {
			return false, err
		}
		touched[strings.ToLower(ent.Name)] = ent
		return true, nil
	}

	successor, err := e.superseder.Supersede(ctx, ownerID, ch, now)
	if err != nil {
		if errorsIsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	touched[strings.ToLower(successor.Name)] = successor
	return true, nil
}

// upsertRelationship records a subject-predicate-object triple. Within a
// predicate family the new relationship supersedes the subject's
// previous one (a person works at one place at a time); an identical
// triple just refreshes confidence. Each stored relationship also emits
// a fact against the subject entity. Returns how many relationships were
// written.
func (e *Engine) upsertRelationship(ctx context.Context, ownerID string, r llm.ExtractedRelationship, touched map[string]*types.Entity, now time.Time) (int, error) {
	family := types.PredicateFamily(r.Predicate)

	existing, err := e.store.ActiveRelationshipForSubject(ctx, ownerID, r.Subject, family)
	if err != nil && !errorsIsNotFound(err) {
		return 0, err
	}
	if existing != nil {
		if existing.Predicate == r.Predicate && strings.EqualFold(existing.ObjectName, r.Object) {
			if r.Confidence > existing.Confidence {
				existing.Confidence = r.Confidence
				if err := e.store.UpdateRelationship(ctx, existing); err != nil {
					return 0, err
				}
			}
			return 0, nil
		}
		if _, err := e.store.RetireRelationship(ctx, existing.ID, now); err != nil {
			return 0, err
		}
	}

	rel := &types.Relationship{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		SubjectName: r.Subject,
		Predicate:   r.Predicate,
		ObjectName:  r.Object,
		Confidence:  r.Confidence,
		Status:      types.RelationshipActive,
	}
	if subj := touched[strings.ToLower(r.Subject)]; subj != nil {
		rel.SubjectEntityID = subj.ID
	}
	if obj := touched[strings.ToLower(r.Object)]; obj != nil {
		rel.ObjectEntityID = obj.ID
	}
	if err := e.store.CreateRelationship(ctx, rel); err != nil {
		return 0, err
	}

	if rel.SubjectEntityID != "" {
		fact := &types.Fact{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			EntityID:   rel.SubjectEntityID,
			Predicate:  r.Predicate,
			ObjectText: r.Object,
			Confidence: r.Confidence,
		}
		if err := e.store.CreateFact(ctx, fact); err != nil {
			e.log.Warnw("failed to record fact", "predicate", r.Predicate, "error", err)
		}
	}
	e.emit("relationship.created", ownerID,
		fmt.Sprintf("%s %s %s", r.Subject, r.Predicate, r.Object))
	return 1, nil
}

// --- background ingestion ---

type ingestTask struct {
	req     IngestRequest
	attempt int
}

const maxIngestAttempts = 3

// EnqueueIngest hands a note to the background workers, for callers
// that cannot wait on the full pipeline (the inbox watcher, bulk
// imports). Returns false when the queue is full.
func (e *Engine) EnqueueIngest(req IngestRequest) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.queue <- ingestTask{req: req}:
		return true
	default:
		e.log.Warnw("ingest queue full, dropping note", "owner", req.OwnerID)
		return false
	}
}

func (e *Engine) startWorkers() {
	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case task := <-e.queue:
					e.process(task)
				case <-e.done:
					// Drain what is already queued, then stop.
					for {
						select {
						case task := <-e.queue:
							e.process(task)
						default:
							return
						}
					}
				}
			}
		}()
	}
}

func (e *Engine) process(task ingestTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if _, err := e.Ingest(ctx, task.req); err != nil {
		task.attempt++
		if task.attempt >= maxIngestAttempts {
			e.log.Errorw("background ingest failed permanently",
				"owner", task.req.OwnerID, "attempts", task.attempt, "error", err)
			return
		}
		// Quadratic backoff between attempts.
		backoff := time.Duration(task.attempt*task.attempt) * time.Second
		e.log.Warnw("background ingest failed, retrying",
			"owner", task.req.OwnerID, "attempt", task.attempt, "backoff", backoff)
		// The retry goroutine is tracked separately from the workers
		// and bails out on shutdown instead of re-sending.
		e.retryWG.Add(1)
		go func() {
			defer e.retryWG.Done()
			t := time.NewTimer(backoff)
			defer t.Stop()
			select {
			case <-e.done:
				return
			case <-t.C:
			}
			select {
			case e.queue <- task:
			default:
				e.log.Errorw("ingest queue full on retry, dropping note",
					"owner", task.req.OwnerID)
			}
		}()
	}
}

// --- user actions ---

// Dismiss marks an entity dismissed. Every automated path treats a
// dismissed name as untouchable, so the graph stops accumulating state
// for it until the user says otherwise.
func (e *Engine) Dismiss(ctx context.Context, ownerID, entityID string) error {
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if ent.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	if err := e.store.SetEntityStatus(ctx, entityID, types.StatusDismissed, time.Now().UTC()); err != nil {
		return err
	}
	e.cache.Invalidate(ownerID)
	e.emit("entity.dismissed", ownerID, ent.Name)
	return nil
}

// Confirm marks an entity's relationship-to-owner as user-validated.
func (e *Engine) Confirm(ctx context.Context, ownerID, entityID string) error {
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if ent.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	ent.Confirmed = true
	// Confirming is the one path out of dismissed: an explicit user
	// action, unlike the automated jobs that must leave dismissed
	// records alone.
	if ent.Status == types.StatusDismissed {
		ent.Status = types.StatusActive
	}
	if err := e.store.UpdateEntity(ctx, ent); err != nil {
		return err
	}
	e.cache.Invalidate(ownerID)
	e.emit("entity.confirmed", ownerID, ent.Name)
	return nil
}

// --- reads ---

// Entities lists entities for an owner through the standard filter.
func (e *Engine) Entities(ctx context.Context, f storage.EntityFilter) ([]types.Entity, error) {
	return e.store.ListEntities(ctx, f)
}

// EntityFacts returns an entity's facts, newest first.
func (e *Engine) EntityFacts(ctx context.Context, ownerID, entityID string) ([]types.Fact, error) {
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if ent.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return e.store.FactsForEntity(ctx, entityID)
}

// EntityChain returns an entity's full supersession history, oldest
// version first.
func (e *Engine) EntityChain(ctx context.Context, ownerID, entityID string) ([]*types.Entity, error) {
	ent, err := e.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if ent.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return e.store.EntityChain(ctx, entityID)
}

// Relationships returns the owner's active relationships.
func (e *Engine) Relationships(ctx context.Context, ownerID string) ([]types.Relationship, error) {
	return e.store.ActiveRelationships(ctx, ownerID)
}

// Inferences returns the owner's active inferences. With entityNames it
// returns only inferences touching at least one of the named entities,
// matched case-insensitively; this is the read the chat context uses.
func (e *Engine) Inferences(ctx context.Context, ownerID string, entityNames []string) ([]types.Inference, error) {
	all, err := e.store.ActiveInferences(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(entityNames) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(entityNames))
	for _, name := range entityNames {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var out []types.Inference
	for _, inf := range all {
		for _, subject := range inf.SubjectEntities {
			if wanted[strings.ToLower(subject)] {
				out = append(out, inf)
				break
			}
		}
	}
	return out, nil
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
