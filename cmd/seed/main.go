package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kazimov/jobtrail/domain"
	"github.com/kazimov/jobtrail/store"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func newID() string { return uuid.New().String() }

func daysAgo(d int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -d)
}

func randBetween(min, max int) int {
	return min + rand.Intn(max-min+1)
}

func pick[T any](items []T) T {
	return items[rand.Intn(len(items))]
}

func randVector(dim int, seed float32) domain.Vector {
	v := make(domain.Vector, dim)
	for i := range v {
		v[i] = seed + float32(rand.Intn(100))/100
	}
	return v
}

func encodeVector(v domain.Vector) []byte { return store.EncodeVector(v) }

// ── main ─────────────────────────────────────────────────────────────────────

// This seeds a demo dataset for the server engine: a handful of listings
// spanning all four archetypes, résumé variants for each, a mix of open
// and closed batches, applications at various outcome stages, and inbound
// messages/call logs that exercise the matcher's cascade path. Grounded
// on the teacher's own cmd/seed/main.go idiom (single transaction,
// cleanup-by-sentinel, pick[T]/randBetween helpers), repointed from a
// multi-user job tracker's rows at this engine's single-operator entities.
func main() {
	_ = godotenv.Load()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "jobtrail"),
		envOr("DB_PASSWORD", "jobtrail"),
		envOr("DB_NAME", "jobtrail"),
		envOr("DB_SSL_MODE", "disable"),
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	fmt.Println("connected to database")

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	// ── clean up previous seed data ──────────────────────────────────────
	const seedKeyword = "jobtrail-seed"
	_, _ = tx.Exec(ctx, `DELETE FROM listings WHERE search_keyword = $1`, seedKeyword)
	fmt.Println("cleaned previous seed data")

	archetypes := []string{"builder", "fixer", "operator", "translator"}
	const embedDim = 8
	const modelVersion = "seed-v1"

	// ── 1. resume variants, one per archetype ───────────────────────────
	for _, arch := range archetypes {
		_, err = tx.Exec(ctx, `
			INSERT INTO resume_variants (archetype, version_store_path, current_version_id, embedding,
				embedding_model, alignment_score, last_rewrite_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
			ON CONFLICT (archetype) DO NOTHING`,
			arch, fmt.Sprintf("variants/%s", arch), newID(),
			encodeVector(randVector(embedDim, 0.4)), modelVersion, 0.82, daysAgo(randBetween(10, 40)), daysAgo(90),
		)
		must(err, "create resume variant "+arch)
	}
	fmt.Printf("created %d resume variants\n", len(archetypes))

	// ── 2. listings spanning all four archetypes ────────────────────────
	type listingDef struct {
		title, entity, fullText, roleType, seniority, archetype string
		daysAgo                                                 int
		classified                                               bool
	}
	listings := []listingDef{
		{"Senior Backend Engineer", "CloudScale Inc.", "Build and maintain the core payments service in Go.", "permanent", "senior", "builder", 12, true},
		{"Platform Engineer", "InfraCore", "Own CI/CD pipelines and Kubernetes platform reliability.", "permanent", "mid", "operator", 8, true},
		{"Production Support Engineer", "FinEdge", "Triage and resolve incidents across the trading platform.", "contract", "mid", "fixer", 5, true},
		{"Technical Writer / Developer Relations", "Quantum Labs", "Translate ML research into developer-facing documentation.", "permanent", "mid", "translator", 3, true},
		{"Founding Engineer", "GreenByte Solutions", "Greenfield product build, full ownership of the stack.", "permanent", "senior", "builder", 2, false},
		{"SRE On-Call Rotation", "DataPulse", "Keep the data pipeline up; on-call for pages and outages.", "permanent", "senior", "operator", 1, false},
	}
	listingIDs := make([]string, 0, len(listings))
	for i, l := range listings {
		id := newID()
		listingIDs = append(listingIDs, id)
		scores := fmt.Sprintf(`{"builder":0.1,"fixer":0.1,"operator":0.1,"translator":0.1,"%s":0.7}`, l.archetype)
		_, err = tx.Exec(ctx, `
			INSERT INTO listings (id, external_id, title, hiring_entity, full_text, first_seen_at,
				search_keyword, role_type, seniority, technology_tags, archetype_scores, primary_archetype,
				embedding, embedding_model, intelligence_only, classified, classify_attempts, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)`,
			id, fmt.Sprintf("seed-ext-%d", i), l.title, l.entity, l.fullText, daysAgo(l.daysAgo),
			seedKeyword, l.roleType, l.seniority, `["go","kubernetes"]`, scores, l.archetype,
			encodeVector(randVector(embedDim, 0.5)), modelVersion, false, l.classified, 1, daysAgo(l.daysAgo),
		)
		must(err, "create listing "+l.title)
	}
	fmt.Printf("created %d listings\n", len(listings))

	// ── 3. one closed batch, one open batch ──────────────────────────────
	closedBatchID := newID()
	_, err = tx.Exec(ctx, `
		INSERT INTO batches (id, archetype, opened_at, closed_at, app_count)
		VALUES ($1,$2,$3,$4,$5)`,
		closedBatchID, "builder", daysAgo(12), daysAgo(12), 1,
	)
	must(err, "create closed batch")

	openBatchID := newID()
	_, err = tx.Exec(ctx, `
		INSERT INTO batches (id, archetype, opened_at, closed_at, app_count)
		VALUES ($1,$2,$3,NULL,$4)`,
		openBatchID, "operator", daysAgo(1), 0,
	)
	must(err, "create open batch")
	fmt.Println("created 1 closed batch, 1 open batch")

	// ── 4. applications across outcome stages ────────────────────────────
	type appDef struct {
		listingIdx int
		archetype  string
		outcome    string
		batchID    string
		submittedDA int
	}
	appDefs := []appDef{
		{0, "builder", "offer", closedBatchID, 12},
		{1, "operator", "interview", openBatchID, 1},
		{2, "fixer", "rejected", "", 9},
		{3, "translator", "acknowledged", "", 4},
	}
	appIDs := make([]string, 0, len(appDefs))
	for i, ad := range appDefs {
		id := newID()
		appIDs = append(appIDs, id)
		outcomeAt := daysAgo(ad.submittedDA - 1)
		_, err = tx.Exec(ctx, `
			INSERT INTO applications (id, listing_id, variant_archetype, version_identifier, profile_state,
				batch_id, submitted_at, outcome, outcome_at, outcome_message_id, selection_rationale,
				submission_failed, submission_error, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
			id, listingIDs[ad.listingIdx], ad.archetype, fmt.Sprintf("v%d", i+1), ad.archetype,
			ad.batchID, daysAgo(ad.submittedDA), ad.outcome, outcomeAt, "", "top score for archetype",
			false, "", daysAgo(ad.submittedDA),
		)
		must(err, "create application")
	}
	fmt.Printf("created %d applications\n", len(appDefs))

	// ── 5. known senders ─────────────────────────────────────────────────
	senders := []struct{ address, domain, entity, class string }{
		{"recruiting@cloudscale.io", "cloudscale.io", "CloudScale Inc.", "direct"},
		{"jobs@infracore.dev", "infracore.dev", "InfraCore", "direct"},
		{"noreply@talentagency.com", "talentagency.com", "FinEdge", "agency"},
	}
	for _, s := range senders {
		_, err = tx.Exec(ctx, `
			INSERT INTO known_senders (address, root_domain, hiring_entity, sender_type, first_seen_at)
			VALUES ($1,$2,$3,$4,$5) ON CONFLICT (address) DO NOTHING`,
			s.address, s.domain, s.entity, s.class, daysAgo(20),
		)
		must(err, "create known sender "+s.address)
	}
	fmt.Printf("created %d known senders\n", len(senders))

	// ── 6. inbound messages, matched and unmatched ───────────────────────
	type msgDef struct {
		appIdx  int // -1 = unmatched
		sender  string
		subject string
		body    string
		daysAgo int
	}
	msgDefs := []msgDef{
		{0, "recruiting@cloudscale.io", "Offer: Senior Backend Engineer", "We're delighted to extend an offer.", 12},
		{1, "jobs@infracore.dev", "Interview invitation", "We'd like to schedule a technical interview.", 1},
		{2, "noreply@talentagency.com", "Application update", "Unfortunately we will not be moving forward.", 9},
		{-1, "unknown@somecompany.com", "Thanks for applying", "We received your application.", 2},
	}
	for i, md := range msgDefs {
		matchedApp := ""
		method := "unmatched"
		if md.appIdx >= 0 {
			matchedApp = appIDs[md.appIdx]
			method = "cascade"
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, external_id, received_at, sender_address, sender_domain, subject, body,
				source_class, outcome_classification, confidence, matched_application_id, match_method,
				requires_manual_review, candidate_application_ids, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			newID(), fmt.Sprintf("seed-msg-%d", i), daysAgo(md.daysAgo), md.sender, rootDomainOf(md.sender),
			md.subject, md.body, "direct", "", 0.9, matchedApp, method, md.appIdx < 0, `[]`, daysAgo(md.daysAgo),
		)
		must(err, "create message")
	}
	fmt.Printf("created %d messages\n", len(msgDefs))

	// ── 7. a manually logged call ────────────────────────────────────────
	_, err = tx.Exec(ctx, `
		INSERT INTO call_logs (id, phone, hiring_entity, title, outcome, notes, call_date,
			matched_application_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		newID(), "+1-555-0100", "GreenByte Solutions", "Founding Engineer", "interview",
		"Recruiter called to schedule an onsite.", daysAgo(2), "", daysAgo(2),
	)
	must(err, "create call log")
	fmt.Println("created 1 call log")

	// ── 8. a market centroid per archetype plus a drift alert ───────────
	for _, arch := range archetypes {
		_, err = tx.Exec(ctx, `
			INSERT INTO market_centroids (id, archetype, window_start, window_end, vector, model_version,
				jd_count, shift_from_prev, has_previous, terms_gained, terms_lost, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			newID(), arch, daysAgo(37), daysAgo(7), encodeVector(randVector(embedDim, pick([]float32{0.3, 0.5, 0.7}))),
			modelVersion, randBetween(6, 20), 0.03, false, `["kubernetes","terraform"]`, `["php"]`, daysAgo(7),
		)
		must(err, "create centroid "+arch)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO drift_alerts (id, archetype, kind, metric_value, threshold, details, acknowledged, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		newID(), "operator", "market_shift", 0.11, 0.05, `{"window_start":"seed"}`, false, daysAgo(6),
	)
	must(err, "create drift alert")
	fmt.Println("created 4 centroids, 1 drift alert")

	// ── commit ───────────────────────────────────────────────────────────
	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit: %v", err)
	}

	fmt.Println("\nseed completed successfully")
}

func rootDomainOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			return address[i+1:]
		}
	}
	return address
}

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
