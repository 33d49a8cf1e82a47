// Package store provides the concrete Store (§4.1) engines.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/ports"
)

// dbPool is the subset of *pgxpool.Pool the store needs, grounded on
// modules/analytics/repository's DBPool interface: narrowing to what is
// actually called lets tests inject a github.com/pashagolub/pgxmock/v4
// pool instead of a live database.
type dbPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is the server engine: a pgxpool-backed ports.Store,
// grounded on the repository shape in
// modules/jobs/repository/job_repository.go — one struct wrapping a
// pool, one method per query, pgx.ErrNoRows mapped to a domain sentinel.
type PostgresStore struct {
	pool           dbPool
	closer         func() error
	pinger         func(ctx context.Context) error
	embeddingModel string
}

// NewPostgresStore wraps an already-connected pool. embeddingModel is the
// currently configured embedding model version, used to detect stale
// embeddings on read (see codec.go's DecodeEmbedding).
func NewPostgresStore(pool *pgxpool.Pool, embeddingModel string) *PostgresStore {
	return &PostgresStore{
		pool:           pool,
		closer:         func() error { pool.Close(); return nil },
		pinger:         pool.Ping,
		embeddingModel: embeddingModel,
	}
}

// NewPostgresStoreWithPool wires an arbitrary dbPool (a pgxmock pool in
// tests) without requiring a live connection.
func NewPostgresStoreWithPool(pool dbPool, embeddingModel string) *PostgresStore {
	return &PostgresStore{pool: pool, closer: func() error { return nil }, pinger: func(context.Context) error { return nil }, embeddingModel: embeddingModel}
}

func (s *PostgresStore) Close() error { return s.closer() }

func (s *PostgresStore) Health(ctx context.Context) error { return s.pinger(ctx) }

// txBeginner is implemented by *pgxpool.Pool, by pgx.Tx itself (via
// savepoints) and by the pgxmock pool postgres_test.go injects through
// NewPostgresStoreWithPool.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn against a single Postgres transaction: every store call
// fn makes through tx either all commit or all roll back together, the
// transactional compound-update primitive §4.1 (store capabilities)
// requires for things like "upsert KnownSender + set outcome on
// application" in matcher.Matcher.MatchMessage. Against a dbPool that
// can't begin a transaction, fn just runs directly against s.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Store) error) error {
	beginner, ok := s.pool.(txBeginner)
	if !ok {
		return fn(ctx, s)
	}
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &PostgresStore{pool: tx, closer: func() error { return nil }, pinger: s.pinger, embeddingModel: s.embeddingModel}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Listings ---------------------------------------------------------

func (s *PostgresStore) InsertListing(ctx context.Context, l *domain.Listing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now

	tags, err := EncodeStrings(l.TechnologyTags)
	if err != nil {
		return err
	}
	scores, err := EncodeScores(l.ArchetypeScores)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO listings (id, external_id, title, hiring_entity, full_text, first_seen_at,
			search_keyword, role_type, seniority, technology_tags, archetype_scores,
			primary_archetype, embedding, embedding_model, intelligence_only, classified,
			classify_attempts, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		l.ID, l.ExternalID, l.Title, l.HiringEntity, l.FullText, l.FirstSeenAt,
		l.SearchKeyword, string(l.RoleType), string(l.Seniority), tags, scores,
		string(l.PrimaryArchetype), EncodeVector(l.Embedding.Vector), l.Embedding.ModelVersion,
		l.IntelligenceOnly, l.Classified, l.ClassifyAttempts, l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrListingDuplicate
	}
	return err
}

func (s *PostgresStore) scanListing(row pgx.Row) (*domain.Listing, error) {
	l := &domain.Listing{}
	var roleType, seniority, primaryArchetype, embeddingModel string
	var tags, scores []byte
	var embeddingBytes []byte
	err := row.Scan(&l.ID, &l.ExternalID, &l.Title, &l.HiringEntity, &l.FullText, &l.FirstSeenAt,
		&l.SearchKeyword, &roleType, &seniority, &tags, &scores, &primaryArchetype,
		&embeddingBytes, &embeddingModel, &l.IntelligenceOnly, &l.Classified, &l.ClassifyAttempts,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.RoleType, l.Seniority, l.PrimaryArchetype = domain.RoleType(roleType), domain.Seniority(seniority), domain.Archetype(primaryArchetype)
	if l.TechnologyTags, err = DecodeStrings(tags); err != nil {
		return nil, err
	}
	if l.ArchetypeScores, err = DecodeScores(scores); err != nil {
		return nil, err
	}
	if len(embeddingBytes) > 0 {
		if l.Embedding, err = DecodeEmbedding(embeddingBytes, embeddingModel, s.embeddingModel); err != nil {
			return nil, err
		}
	}
	return l, nil
}

const listingColumns = `id, external_id, title, hiring_entity, full_text, first_seen_at,
	search_keyword, role_type, seniority, technology_tags, archetype_scores, primary_archetype,
	embedding, embedding_model, intelligence_only, classified, classify_attempts, created_at, updated_at`

func (s *PostgresStore) GetListingByID(ctx context.Context, id string) (*domain.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := s.scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	return l, err
}

func (s *PostgresStore) GetListingByExternalID(ctx context.Context, externalID string) (*domain.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = $1`, externalID)
	l, err := s.scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	return l, err
}

func (s *PostgresStore) UpdateListingClassification(ctx context.Context, l *domain.Listing) error {
	scores, err := EncodeScores(l.ArchetypeScores)
	if err != nil {
		return err
	}
	l.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE listings SET role_type=$2, seniority=$3, archetype_scores=$4, primary_archetype=$5,
			embedding=$6, embedding_model=$7, classified=$8, classify_attempts=$9, updated_at=$10
		WHERE id = $1`,
		l.ID, string(l.RoleType), string(l.Seniority), scores, string(l.PrimaryArchetype),
		EncodeVector(l.Embedding.Vector), l.Embedding.ModelVersion, l.Classified, l.ClassifyAttempts, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (s *PostgresStore) SetIntelligenceOnly(ctx context.Context, listingID string, value bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE listings SET intelligence_only = $2, updated_at = now() WHERE id = $1`, listingID, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (s *PostgresStore) ListListings(ctx context.Context, f ports.ListingFilter) ([]*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE TRUE`
	args := []any{}
	n := 0
	arg := func(v any) string { n++; args = append(args, v); return "$" + itoa(n) }

	if f.Archetype != "" {
		query += ` AND primary_archetype = ` + arg(string(f.Archetype))
	}
	if !f.SeenAfter.IsZero() {
		query += ` AND first_seen_at >= ` + arg(f.SeenAfter)
	}
	if !f.SeenBefore.IsZero() {
		query += ` AND first_seen_at < ` + arg(f.SeenBefore)
	}
	if f.IntelligenceOnly != nil {
		query += ` AND intelligence_only = ` + arg(*f.IntelligenceOnly)
	}
	if f.Unclassified {
		query += ` AND classified = FALSE`
	}
	query += ` ORDER BY first_seen_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Listing
	for rows.Next() {
		l, err := s.scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- Applications -------------------------------------------------------

func (s *PostgresStore) InsertApplication(ctx context.Context, a *domain.Application) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	var outcomeAt *time.Time
	if !a.OutcomeAt.IsZero() {
		outcomeAt = &a.OutcomeAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO applications (id, listing_id, variant_archetype, version_identifier, profile_state,
			batch_id, submitted_at, outcome, outcome_at, outcome_message_id, selection_rationale,
			submission_failed, submission_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		a.ID, a.ListingID, string(a.VariantArchetype), a.VersionIdentifier, string(a.ProfileState),
		a.BatchID, a.SubmittedAt, string(a.Outcome), outcomeAt, a.OutcomeMessageID, a.SelectionRationale,
		a.SubmissionFailed, a.SubmissionError, a.CreatedAt, a.UpdatedAt)
	return err
}

const applicationColumns = `id, listing_id, variant_archetype, version_identifier, profile_state,
	batch_id, submitted_at, outcome, outcome_at, outcome_message_id, selection_rationale,
	submission_failed, submission_error, created_at, updated_at`

func (s *PostgresStore) scanApplication(row pgx.Row) (*domain.Application, error) {
	a := &domain.Application{}
	var variantArchetype, profileState, outcome string
	var outcomeAt *time.Time
	err := row.Scan(&a.ID, &a.ListingID, &variantArchetype, &a.VersionIdentifier, &profileState,
		&a.BatchID, &a.SubmittedAt, &outcome, &outcomeAt, &a.OutcomeMessageID, &a.SelectionRationale,
		&a.SubmissionFailed, &a.SubmissionError, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.VariantArchetype, a.ProfileState, a.Outcome = domain.Archetype(variantArchetype), domain.Archetype(profileState), domain.OutcomeStage(outcome)
	if outcomeAt != nil {
		a.OutcomeAt = *outcomeAt
	}
	return a, nil
}

func (s *PostgresStore) GetApplicationByID(ctx context.Context, id string) (*domain.Application, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	a, err := s.scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *PostgresStore) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (*domain.Application, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE listing_id = $1 AND batch_id = $2`, listingID, batchID)
	a, err := s.scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *PostgresStore) GetLatestApplicationByListingID(ctx context.Context, listingID string) (*domain.Application, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE listing_id = $1 ORDER BY submitted_at DESC LIMIT 1`, listingID)
	a, err := s.scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrApplicationNotFound
	}
	return a, err
}

func (s *PostgresStore) UpdateApplicationOutcome(ctx context.Context, a *domain.Application) error {
	a.UpdatedAt = time.Now().UTC()
	var outcomeAt *time.Time
	if !a.OutcomeAt.IsZero() {
		outcomeAt = &a.OutcomeAt
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE applications SET outcome=$2, outcome_at=$3, outcome_message_id=$4, updated_at=$5
		WHERE id = $1`, a.ID, string(a.Outcome), outcomeAt, a.OutcomeMessageID, a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrApplicationNotFound
	}
	return nil
}

func (s *PostgresStore) ListOpenApplications(ctx context.Context, since time.Time) ([]*domain.Application, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE submitted_at >= $1 AND outcome NOT IN ('rejected','offer')
		ORDER BY submitted_at ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Application
	for rows.Next() {
		a, err := s.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListApplicationsByArchetype(ctx context.Context, arch domain.Archetype) ([]*domain.Application, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE variant_archetype = $1 ORDER BY submitted_at DESC`, string(arch))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Application
	for rows.Next() {
		a, err := s.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Messages -----------------------------------------------------------

func (s *PostgresStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	candidates, err := EncodeStrings(m.CandidateApplicationIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, external_id, received_at, sender_address, sender_domain, subject, body,
			source_class, outcome_classification, confidence, matched_application_id, match_method,
			requires_manual_review, candidate_application_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.ExternalID, m.ReceivedAt, m.SenderAddress, m.SenderDomain, m.Subject, m.Body,
		string(m.SourceClass), string(m.OutcomeClassification), m.Confidence, m.MatchedApplicationID,
		string(m.MatchMethod), m.RequiresManualReview, candidates, m.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrMessageDuplicate
	}
	return err
}

func (s *PostgresStore) MessageExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE external_id = $1)`, externalID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) GetMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, received_at, sender_address, sender_domain, subject, body,
			source_class, outcome_classification, confidence, matched_application_id, match_method,
			requires_manual_review, candidate_application_ids, created_at
		FROM messages WHERE id = $1`, id)
	m := &domain.Message{}
	var sourceClass, outcomeClass, matchMethod string
	var candidates []byte
	err := row.Scan(&m.ID, &m.ExternalID, &m.ReceivedAt, &m.SenderAddress, &m.SenderDomain, &m.Subject, &m.Body,
		&sourceClass, &outcomeClass, &m.Confidence, &m.MatchedApplicationID, &matchMethod,
		&m.RequiresManualReview, &candidates, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	m.SourceClass, m.OutcomeClassification, m.MatchMethod = domain.SenderClass(sourceClass), domain.OutcomeStage(outcomeClass), domain.MatchMethod(matchMethod)
	if m.CandidateApplicationIDs, err = DecodeStrings(candidates); err != nil {
		return nil, err
	}
	return m, nil
}

// --- Known senders --------------------------------------------------------

func (s *PostgresStore) UpsertKnownSender(ctx context.Context, k *domain.KnownSender) error {
	if k.FirstSeenAt.IsZero() {
		k.FirstSeenAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO known_senders (address, root_domain, hiring_entity, sender_type, first_seen_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (address) DO UPDATE SET root_domain=$2, hiring_entity=$3, sender_type=$4`,
		k.Address, k.RootDomain, k.HiringEntity, string(k.SenderType), k.FirstSeenAt)
	return err
}

func (s *PostgresStore) GetKnownSenderByAddress(ctx context.Context, address string) (*domain.KnownSender, error) {
	row := s.pool.QueryRow(ctx, `SELECT address, root_domain, hiring_entity, sender_type, first_seen_at FROM known_senders WHERE address = $1`, address)
	k := &domain.KnownSender{}
	var senderType string
	if err := row.Scan(&k.Address, &k.RootDomain, &k.HiringEntity, &senderType, &k.FirstSeenAt); err != nil {
		return nil, err
	}
	k.SenderType = domain.SenderClass(senderType)
	return k, nil
}

// --- Call logs --------------------------------------------------------

func (s *PostgresStore) InsertCallLog(ctx context.Context, c *domain.CallLog) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	candidates, err := EncodeStrings(c.CandidateApplicationIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO call_logs (id, phone, hiring_entity, title, outcome, notes, call_date,
			matched_application_id, requires_manual_review, candidate_application_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Phone, c.HiringEntity, c.Title, string(c.Outcome), c.Notes, c.CallDate,
		c.MatchedApplicationID, c.RequiresManualReview, candidates, c.CreatedAt)
	return err
}

// --- Resume variants --------------------------------------------------------

func (s *PostgresStore) UpsertResumeVariant(ctx context.Context, v *domain.ResumeVariant) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	var lastRewrite *time.Time
	if !v.LastRewriteAt.IsZero() {
		lastRewrite = &v.LastRewriteAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resume_variants (archetype, version_store_path, current_version_id, embedding,
			embedding_model, alignment_score, last_rewrite_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (archetype) DO UPDATE SET version_store_path=$2, current_version_id=$3,
			embedding=$4, embedding_model=$5, alignment_score=$6, last_rewrite_at=$7, updated_at=$9`,
		string(v.Archetype), v.VersionStorePath, v.CurrentVersionID, EncodeVector(v.Embedding.Vector),
		v.Embedding.ModelVersion, v.AlignmentScore, lastRewrite, v.CreatedAt, v.UpdatedAt)
	return err
}

func (s *PostgresStore) scanVariant(row pgx.Row) (*domain.ResumeVariant, error) {
	v := &domain.ResumeVariant{}
	var archetype, modelVersion string
	var embeddingBytes []byte
	var lastRewrite *time.Time
	err := row.Scan(&archetype, &v.VersionStorePath, &v.CurrentVersionID, &embeddingBytes, &modelVersion,
		&v.AlignmentScore, &lastRewrite, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Archetype = domain.Archetype(archetype)
	if v.Embedding, err = DecodeEmbedding(embeddingBytes, modelVersion, s.embeddingModel); err != nil {
		return nil, err
	}
	if lastRewrite != nil {
		v.LastRewriteAt = *lastRewrite
	}
	return v, nil
}

const variantColumns = `archetype, version_store_path, current_version_id, embedding, embedding_model, alignment_score, last_rewrite_at, created_at, updated_at`

func (s *PostgresStore) GetResumeVariant(ctx context.Context, archetype domain.Archetype) (*domain.ResumeVariant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+variantColumns+` FROM resume_variants WHERE archetype = $1`, string(archetype))
	v, err := s.scanVariant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVariantNotFound
	}
	return v, err
}

func (s *PostgresStore) ListResumeVariants(ctx context.Context) ([]*domain.ResumeVariant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+variantColumns+` FROM resume_variants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ResumeVariant
	for rows.Next() {
		v, err := s.scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Centroids --------------------------------------------------------

func (s *PostgresStore) InsertCentroid(ctx context.Context, c *domain.MarketCentroid) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	gained, err := EncodeStrings(c.TermsGained)
	if err != nil {
		return err
	}
	lost, err := EncodeStrings(c.TermsLost)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO market_centroids (id, archetype, window_start, window_end, vector, model_version,
			jd_count, shift_from_prev, has_previous, terms_gained, terms_lost, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, string(c.Archetype), c.WindowStart, c.WindowEnd, EncodeVector(c.Vector), c.ModelVersion,
		c.JDCount, c.ShiftFromPrev, c.HasPrevious, gained, lost, c.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrCentroidDuplicate
	}
	return err
}

func (s *PostgresStore) scanCentroid(row pgx.Row) (*domain.MarketCentroid, error) {
	c := &domain.MarketCentroid{}
	var archetype string
	var vector, gained, lost []byte
	err := row.Scan(&c.ID, &archetype, &c.WindowStart, &c.WindowEnd, &vector, &c.ModelVersion,
		&c.JDCount, &c.ShiftFromPrev, &c.HasPrevious, &gained, &lost, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Archetype = domain.Archetype(archetype)
	c.Vector = DecodeVector(vector)
	if c.TermsGained, err = DecodeStrings(gained); err != nil {
		return nil, err
	}
	if c.TermsLost, err = DecodeStrings(lost); err != nil {
		return nil, err
	}
	return c, nil
}

const centroidColumns = `id, archetype, window_start, window_end, vector, model_version, jd_count, shift_from_prev, has_previous, terms_gained, terms_lost, created_at`

func (s *PostgresStore) GetLatestCentroid(ctx context.Context, archetype domain.Archetype) (*domain.MarketCentroid, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = $1 ORDER BY window_start DESC LIMIT 1`, string(archetype))
	c, err := s.scanCentroid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) GetCentroidAt(ctx context.Context, archetype domain.Archetype, windowStart time.Time) (*domain.MarketCentroid, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = $1 AND window_start = $2`, string(archetype), windowStart)
	c, err := s.scanCentroid(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) ListCentroids(ctx context.Context, archetype domain.Archetype, limit int) ([]*domain.MarketCentroid, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = $1 ORDER BY window_start DESC LIMIT $2`, string(archetype), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.MarketCentroid
	for rows.Next() {
		c, err := s.scanCentroid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Alerts --------------------------------------------------------

func (s *PostgresStore) InsertAlert(ctx context.Context, a *domain.DriftAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	details, err := EncodeDetails(a.Details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO drift_alerts (id, archetype, kind, metric_value, threshold, details, acknowledged, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, string(a.Archetype), string(a.Kind), a.MetricValue, a.Threshold, details, a.Acknowledged, a.CreatedAt)
	return err
}

func (s *PostgresStore) GetLatestUnacknowledgedAlert(ctx context.Context, archetype domain.Archetype, kind domain.AlertKind) (*domain.DriftAlert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, archetype, kind, metric_value, threshold, details, acknowledged, created_at
		FROM drift_alerts WHERE archetype = $1 AND kind = $2 AND acknowledged = FALSE
		ORDER BY created_at DESC LIMIT 1`, string(archetype), string(kind))
	a := &domain.DriftAlert{}
	var arch, kindStr string
	var details []byte
	err := row.Scan(&a.ID, &arch, &kindStr, &a.MetricValue, &a.Threshold, &details, &a.Acknowledged, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Archetype, a.Kind = domain.Archetype(arch), domain.AlertKind(kindStr)
	if a.Details, err = DecodeDetails(details); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE drift_alerts SET acknowledged = TRUE WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) ListUnacknowledgedAlerts(ctx context.Context) ([]*domain.DriftAlert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, archetype, kind, metric_value, threshold, details, acknowledged, created_at
		FROM drift_alerts WHERE acknowledged = FALSE ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.DriftAlert
	for rows.Next() {
		a := &domain.DriftAlert{}
		var arch, kindStr string
		var details []byte
		if err := rows.Scan(&a.ID, &arch, &kindStr, &a.MetricValue, &a.Threshold, &details, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Archetype, a.Kind = domain.Archetype(arch), domain.AlertKind(kindStr)
		if a.Details, err = DecodeDetails(details); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Batches --------------------------------------------------------
//
// OpenBatch is the single-row lock referenced throughout the engine
// packages: the partial unique index idx_batches_one_open (0001_init.up.sql)
// lets at most one row with closed_at IS NULL exist at a time, so a
// concurrent INSERT from a second host fails with a unique violation
// instead of silently opening a second batch.

func (s *PostgresStore) OpenBatch(ctx context.Context, archetype domain.Archetype, now time.Time) (*domain.Batch, error) {
	b := &domain.Batch{ID: uuid.NewString(), Archetype: archetype, OpenedAt: now}
	_, err := s.pool.Exec(ctx, `INSERT INTO batches (id, archetype, opened_at, app_count) VALUES ($1,$2,$3,0)`, b.ID, string(b.Archetype), b.OpenedAt)
	if isUniqueViolation(err) {
		return nil, domain.ErrBatchAlreadyOpen
	}
	return b, err
}

func (s *PostgresStore) GetOpenBatch(ctx context.Context) (*domain.Batch, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, archetype, opened_at, closed_at, app_count FROM batches WHERE closed_at IS NULL`)
	b := &domain.Batch{}
	var archetype string
	var closedAt *time.Time
	err := row.Scan(&b.ID, &archetype, &b.OpenedAt, &closedAt, &b.AppCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBatchNotOpen
	}
	if err != nil {
		return nil, err
	}
	b.Archetype = domain.Archetype(archetype)
	if closedAt != nil {
		b.ClosedAt = *closedAt
	}
	return b, nil
}

func (s *PostgresStore) CloseBatch(ctx context.Context, batchID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE batches SET closed_at = $2 WHERE id = $1 AND closed_at IS NULL`, batchID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBatchNotOpen
	}
	return nil
}

func (s *PostgresStore) IncrementBatchCount(ctx context.Context, batchID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE batches SET app_count = app_count + 1 WHERE id = $1`, batchID)
	return err
}

// --- Funnel rollup, grounded on modules/analytics's CTE-aggregation style ---

func (s *PostgresStore) FunnelCounts(ctx context.Context) (ports.FunnelCounts, error) {
	fc := ports.FunnelCounts{ByOutcome: map[domain.OutcomeStage]int{}}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM listings WHERE intelligence_only),
			(SELECT COUNT(*) FROM listings WHERE classified AND NOT intelligence_only),
			(SELECT COUNT(*) FROM applications),
			(SELECT COUNT(*) FROM messages WHERE requires_manual_review)
	`).Scan(&fc.TotalListings, &fc.IntelligenceOnly, &fc.Queued, &fc.TotalApplications, &fc.ManualReviewMessages)
	if err != nil {
		return fc, err
	}

	rows, err := s.pool.Query(ctx, `SELECT outcome, COUNT(*) FROM applications GROUP BY outcome`)
	if err != nil {
		return fc, err
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return fc, err
		}
		fc.ByOutcome[domain.OutcomeStage(outcome)] = count
	}
	return fc, rows.Err()
}

// --- Watermarks --------------------------------------------------------

func (s *PostgresStore) GetWatermark(ctx context.Context, source string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT external_id FROM watermarks WHERE source = $1`, source).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *PostgresStore) SetWatermark(ctx context.Context, source, id string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watermarks (source, external_id) VALUES ($1, $2)
		ON CONFLICT (source) DO UPDATE SET external_id = $2`, source, id)
	return err
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
