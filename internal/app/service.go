package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"provenance/api/internal/archive"
	"provenance/api/internal/auth"
	"provenance/api/internal/cache"
	"provenance/api/internal/changelog"
	"provenance/api/internal/config"
	"provenance/api/internal/export"
	"provenance/api/internal/gitrepo"
	"provenance/api/internal/notify"
	"provenance/api/internal/replay"
	"provenance/api/internal/search"
	"provenance/api/internal/store"
	"provenance/api/internal/util"
)

type ReplayInput struct {
	DocumentID string             `json:"documentId"`
	Changelog  json.RawMessage    `json:"changelog"`
	UserMap    json.RawMessage    `json:"userMap"`
	Options    ReplayOptionsInput `json:"options"`
	Persist    bool               `json:"persist"`
	IncludeRaw bool               `json:"includeRaw"`
}

type ReplayOutput struct {
	ReportID string          `json:"reportId,omitempty"`
	Cached   bool            `json:"cached"`
	Result   json.RawMessage `json:"result"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

type reportStore interface {
	SaveReport(context.Context, store.Report) error
	GetReport(context.Context, string) (store.Report, error)
	FindByFingerprint(context.Context, string, string) (store.Report, error)
	ListReports(context.Context, string, int) ([]store.ReportSummary, error)
	Ping(ctx context.Context) error
}

type resultCache interface {
	Get(context.Context, string) (cache.Entry, error)
	Set(context.Context, string, cache.Entry) error
}

type changelogArchive interface {
	PutChangelog(context.Context, string, string, []byte) (string, error)
	PutReport(context.Context, string, string, []byte) (string, error)
	GetChangelog(context.Context, string) ([]byte, error)
}

type tileSearch interface {
	Search(context.Context, search.Query) search.Response
	IndexReport(store.Report)
}

type snapshotHistory interface {
	CommitSnapshot(string, gitrepo.Snapshot, string) (gitrepo.Commit, error)
	History(string, int) ([]gitrepo.Commit, error)
	SnapshotAt(string, string) (gitrepo.Snapshot, error)
}

type eventPublisher interface {
	Publish(context.Context, notify.Event) error
}

type reportExporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

// Deps are the optional backends of the service. Nil entries disable the
// corresponding feature.
type Deps struct {
	Cache     *cache.RedisCache
	Archive   *archive.Store
	Search    *search.Service
	Snapshots *gitrepo.Service
	Bus       *notify.RedisBus
	Exporter  *export.Service
}

type Service struct {
	cfg       config.Config
	store     reportStore
	cache     resultCache
	archive   changelogArchive
	search    tileSearch
	snapshots snapshotHistory
	bus       eventPublisher
	exporter  reportExporter
	logger    *log.Logger
	now       func() time.Time
}

func New(cfg config.Config, reports *store.PostgresStore, deps Deps) *Service {
	s := &Service{
		cfg:    cfg,
		logger: log.Default(),
		now:    time.Now,
	}
	if reports != nil {
		s.store = reports
	}
	if deps.Archive != nil {
		s.archive = deps.Archive
	}
	if deps.Cache != nil {
		s.cache = deps.Cache
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Snapshots != nil {
		s.snapshots = deps.Snapshots
	}
	if deps.Bus != nil {
		s.bus = deps.Bus
	}
	if deps.Exporter != nil {
		s.exporter = deps.Exporter
	} else {
		s.exporter = export.NewService()
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return errStoreUnavailable
	}
	return s.store.Ping(ctx)
}

// Replay decodes and replays a changelog. Identical requests are answered
// from the cache, then from a stored report with the same fingerprint.
func (s *Service) Replay(ctx context.Context, in ReplayInput) (ReplayOutput, error) {
	in.DocumentID = strings.TrimSpace(in.DocumentID)
	in.UserMap = nonEmptyJSON(in.UserMap)
	if len(in.Changelog) == 0 {
		return ReplayOutput{}, errChangelogRequired
	}
	if in.Persist && in.DocumentID == "" {
		return ReplayOutput{}, validationError("documentId is required to persist a report", nil)
	}

	decoded, err := changelog.Decode(in.Changelog)
	if errors.Is(err, changelog.ErrNotArray) {
		return ReplayOutput{}, errChangelogNotArray
	}
	if err != nil {
		return ReplayOutput{}, fmt.Errorf("decode changelog: %w", err)
	}
	if s.cfg.MaxOperations > 0 && len(decoded.Records) > s.cfg.MaxOperations {
		return ReplayOutput{}, domainError(http.StatusRequestEntityTooLarge, "CHANGELOG_TOO_LARGE",
			fmt.Sprintf("changelog has %d records; the limit is %d", len(decoded.Records), s.cfg.MaxOperations),
			map[string]any{"records": len(decoded.Records), "limit": s.cfg.MaxOperations})
	}

	opts, err := in.Options.apply(s.cfg.Replay)
	if err != nil {
		return ReplayOutput{}, err
	}
	fingerprint, optionsJSON, err := Fingerprint(in.Changelog, in.UserMap, opts)
	if err != nil {
		return ReplayOutput{}, err
	}
	cacheKey := in.DocumentID + ":" + fingerprint

	output := ReplayOutput{}
	if in.IncludeRaw {
		output.Raw = in.Changelog
	}

	if entry, ok := s.cached(ctx, cacheKey); ok && (!in.Persist || entry.ReportID != "") {
		output.ReportID = entry.ReportID
		output.Cached = true
		output.Result = entry.Result
		s.publish(ctx, in.DocumentID, entry.ReportID, true, entry.Result)
		return output, nil
	}

	if in.Persist && s.store != nil {
		existing, err := s.store.FindByFingerprint(ctx, in.DocumentID, fingerprint)
		if err == nil {
			s.remember(ctx, cacheKey, existing.ID, existing.Result)
			output.ReportID = existing.ID
			output.Cached = true
			output.Result = existing.Result
			s.publish(ctx, in.DocumentID, existing.ID, true, existing.Result)
			return output, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return ReplayOutput{}, fmt.Errorf("find report: %w", err)
		}
	}

	opts.Logger = s.logger
	result := replay.Run(decoded, changelog.DecodeUsers(in.UserMap), opts)
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return ReplayOutput{}, fmt.Errorf("marshal result: %w", err)
	}
	output.Result = resultJSON

	if in.Persist {
		report := BuildReport(util.NewID("rpt"), in.DocumentID, fingerprint, optionsJSON, resultJSON, result)
		report.CreatedAt = s.now().UTC()
		if err := s.persist(ctx, &report, in.Changelog, in.UserMap); err != nil {
			return ReplayOutput{}, err
		}
		output.ReportID = report.ID
	}

	s.remember(ctx, cacheKey, output.ReportID, resultJSON)
	s.publish(ctx, in.DocumentID, output.ReportID, false, resultJSON)
	return output, nil
}

// persist saves the report and runs the best-effort side effects: archive,
// search indexing and the final-text snapshot.
func (s *Service) persist(ctx context.Context, report *store.Report, rawChangelog, rawUsers json.RawMessage) error {
	if s.store == nil {
		return errStoreUnavailable
	}

	if s.archive != nil {
		blob, err := json.Marshal(changelog.Export{Changelog: rawChangelog, UserMap: rawUsers})
		if err != nil {
			return fmt.Errorf("marshal changelog archive: %w", err)
		}
		key, err := s.archive.PutChangelog(ctx, report.DocumentID, report.ID, blob)
		if err != nil {
			log.Printf("archive: store changelog for %s: %v", report.ID, err)
		} else {
			report.ChangelogKey = key
		}
	}

	if err := s.store.SaveReport(ctx, *report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if s.archive != nil {
		if _, err := s.archive.PutReport(ctx, report.DocumentID, report.ID, report.Result); err != nil {
			log.Printf("archive: store result for %s: %v", report.ID, err)
		}
	}
	if s.search != nil {
		s.search.IndexReport(*report)
	}
	if s.snapshots != nil {
		var result replay.Result
		if err := json.Unmarshal(report.Result, &result); err == nil {
			message := fmt.Sprintf("Replay %s: %d tiles, %d authors", report.ID, len(result.Tiles), len(result.TotalsByUser))
			if _, err := s.snapshots.CommitSnapshot(report.DocumentID, buildSnapshot(report.ID, result), message); err != nil {
				log.Printf("snapshots: commit %s for %s: %v", report.ID, report.DocumentID, err)
			}
		}
	}
	return nil
}

func (s *Service) cached(ctx context.Context, key string) (cache.Entry, bool) {
	if s.cache == nil {
		return cache.Entry{}, false
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("cache: get %s: %v", key, err)
		}
		return cache.Entry{}, false
	}
	return entry, true
}

func (s *Service) remember(ctx context.Context, key, reportID string, result json.RawMessage) {
	if s.cache == nil {
		return
	}
	entry := cache.Entry{ReportID: reportID, Result: result, CachedAt: s.now().UTC()}
	if err := s.cache.Set(ctx, key, entry); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

func (s *Service) publish(ctx context.Context, documentID, reportID string, cached bool, resultJSON json.RawMessage) {
	if s.bus == nil || documentID == "" {
		return
	}
	var result replay.Result
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		log.Printf("notify: decode result for %s: %v", documentID, err)
		return
	}
	event := notify.Event{
		Type:        notify.EventReportCompleted,
		DocumentID:  documentID,
		ReportID:    reportID,
		Cached:      cached,
		Tiles:       len(result.Tiles),
		Authors:     len(result.TotalsByUser),
		FinalLength: result.Meta.FinalLength,
		At:          s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		log.Printf("notify: publish %s: %v", documentID, err)
	}
}

func (s *Service) GetReport(ctx context.Context, reportID string) (map[string]any, error) {
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return reportPayload(report), nil
}

func (s *Service) ListReports(ctx context.Context, documentID string, limit int) (map[string]any, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, validationError("documentId is required", nil)
	}
	if s.store == nil {
		return nil, errStoreUnavailable
	}
	summaries, err := s.store.ListReports(ctx, documentID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, summaryPayload(summary))
	}
	return map[string]any{"documentId": documentID, "reports": items}, nil
}

// Rerun replays an archived changelog with new options and stores the
// result as a new report.
func (s *Service) Rerun(ctx context.Context, reportID string, options ReplayOptionsInput) (ReplayOutput, error) {
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return ReplayOutput{}, err
	}
	if s.archive == nil {
		return ReplayOutput{}, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Changelog archive is not configured", nil)
	}
	if report.ChangelogKey == "" {
		return ReplayOutput{}, domainError(http.StatusConflict, "CHANGELOG_NOT_ARCHIVED", "The changelog for this report was not archived", nil)
	}
	blob, err := s.archive.GetChangelog(ctx, report.ChangelogKey)
	if err != nil {
		return ReplayOutput{}, fmt.Errorf("load archived changelog: %w", err)
	}
	rawChangelog, rawUsers, err := changelog.SplitExport(blob)
	if err != nil {
		return ReplayOutput{}, fmt.Errorf("split archived changelog: %w", err)
	}
	return s.Replay(ctx, ReplayInput{
		DocumentID: report.DocumentID,
		Changelog:  rawChangelog,
		UserMap:    rawUsers,
		Options:    options,
		Persist:    true,
	})
}

func (s *Service) Export(ctx context.Context, reportID, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	var result replay.Result
	if err := json.Unmarshal(report.Result, &result); err != nil {
		return nil, fmt.Errorf("decode stored result: %w", err)
	}
	return s.exporter.Export(ctx, export.Request{
		ReportID:    report.ID,
		DocumentID:  report.DocumentID,
		CreatedAt:   report.CreatedAt,
		Format:      parsed,
		Result:      result,
		IncludeText: true,
	})
}

// Share issues a signed read-only link for a report.
func (s *Service) Share(ctx context.Context, reportID string) (map[string]any, error) {
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.ShareTTL).UTC()
	token, err := auth.IssueShareToken([]byte(s.cfg.ShareSecret), auth.ShareClaims{
		ReportID:   report.ID,
		DocumentID: report.DocumentID,
		JTI:        util.NewID("shr"),
		Exp:        expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue share token: %w", err)
	}
	return map[string]any{
		"reportId":  report.ID,
		"token":     token,
		"path":      "/api/shared/" + token,
		"expiresAt": expiresAt,
	}, nil
}

func (s *Service) GetShared(ctx context.Context, token string) (map[string]any, error) {
	claims, err := auth.ParseShareToken([]byte(s.cfg.ShareSecret), token, s.now())
	if err != nil {
		return nil, err
	}
	report, err := s.loadReport(ctx, claims.ReportID)
	if err != nil {
		return nil, err
	}
	payload := reportPayload(report)
	payload["shared"] = true
	return payload, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return search.Response{}, validationError("q is required", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Backend: "none"}, nil
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) Snapshots(_ context.Context, documentID string, limit int) (map[string]any, error) {
	if s.snapshots == nil {
		return nil, errSnapshotsUnavailable
	}
	commits, err := s.snapshots.History(documentID, limit)
	if errors.Is(err, gitrepo.ErrNoSnapshots) {
		commits = []gitrepo.Commit{}
	} else if errors.Is(err, gitrepo.ErrInvalidDocumentID) {
		return nil, errInvalidDocumentID
	} else if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	return map[string]any{"documentId": documentID, "snapshots": commits}, nil
}

// Snapshot returns the final text and author shares committed at hash.
func (s *Service) Snapshot(_ context.Context, documentID, hash string) (map[string]any, error) {
	if s.snapshots == nil {
		return nil, errSnapshotsUnavailable
	}
	snap, err := s.snapshots.SnapshotAt(documentID, hash)
	switch {
	case errors.Is(err, gitrepo.ErrInvalidDocumentID):
		return nil, errInvalidDocumentID
	case errors.Is(err, gitrepo.ErrNoSnapshots), errors.Is(err, gitrepo.ErrUnknownSnapshot):
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found", nil)
	case err != nil:
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return map[string]any{
		"documentId": documentID,
		"hash":       hash,
		"reportId":   snap.ReportID,
		"text":       snap.Text,
		"authors":    snap.Authors,
		"meta":       snap.Meta,
	}, nil
}

func (s *Service) loadReport(ctx context.Context, reportID string) (store.Report, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return store.Report{}, errReportNotFound
	}
	if s.store == nil {
		return store.Report{}, errStoreUnavailable
	}
	report, err := s.store.GetReport(ctx, reportID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Report{}, errReportNotFound
	}
	if err != nil {
		return store.Report{}, err
	}
	return report, nil
}

// BuildReport projects a replay result into the stored report shape.
func BuildReport(id, documentID, fingerprint string, optionsJSON, resultJSON json.RawMessage, result replay.Result) store.Report {
	report := store.Report{
		ID:            id,
		DocumentID:    documentID,
		Fingerprint:   fingerprint,
		Options:       optionsJSON,
		Result:        resultJSON,
		Records:       result.Meta.Records,
		DeletionCount: len(result.Deletions),
		FinalLength:   result.Meta.FinalLength,
		Tiles:         make([]store.TileRecord, 0, len(result.Tiles)),
		Totals:        make([]store.AuthorTotal, 0, len(result.TotalsByUser)),
	}
	for i, tile := range result.Tiles {
		report.Tiles = append(report.Tiles, store.TileRecord{
			Ordinal:       i,
			AuthorID:      tile.AuthorID,
			Author:        tile.Author,
			StartedAt:     tile.Timestamp,
			EndedAt:       tile.LastTimestamp,
			Text:          tile.Text,
			TotalChars:    tile.Stats.TotalChars,
			TotalWords:    tile.Stats.TotalWords,
			InternalChars: tile.Stats.InternalChars,
			ExternalChars: tile.Stats.ExternalChars,
		})
	}
	for _, authorID := range sortedAuthorIDs(result.TotalsByUser) {
		totals := result.TotalsByUser[authorID]
		report.Totals = append(report.Totals, store.AuthorTotal{
			AuthorID:      authorID,
			Author:        totals.Author,
			Tiles:         totals.Tiles,
			TotalChars:    totals.TotalChars,
			TotalWords:    totals.TotalWords,
			InternalChars: totals.InternalChars,
			InternalWords: totals.InternalWords,
			ExternalChars: totals.ExternalChars,
			ExternalWords: totals.ExternalWords,
		})
	}
	return report
}

func buildSnapshot(reportID string, result replay.Result) gitrepo.Snapshot {
	snap := gitrepo.Snapshot{
		ReportID: reportID,
		Text:     result.FinalText,
		Authors:  make([]gitrepo.AuthorShare, 0, len(result.TotalsByUser)),
		Meta: map[string]int{
			"records":     result.Meta.Records,
			"inserts":     result.Meta.Inserts,
			"deletes":     result.Meta.Deletes,
			"finalLength": result.Meta.FinalLength,
		},
	}
	for _, authorID := range sortedAuthorIDs(result.TotalsByUser) {
		totals := result.TotalsByUser[authorID]
		snap.Authors = append(snap.Authors, gitrepo.AuthorShare{
			AuthorID:   authorID,
			Author:     totals.Author,
			TotalChars: totals.TotalChars,
			Tiles:      totals.Tiles,
		})
	}
	return snap
}

// sortedAuthorIDs orders authors by contributed characters, then id.
func sortedAuthorIDs(totals map[string]replay.Totals) []string {
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := totals[ids[i]], totals[ids[j]]
		if a.TotalChars != b.TotalChars {
			return a.TotalChars > b.TotalChars
		}
		return ids[i] < ids[j]
	})
	return ids
}

func reportPayload(report store.Report) map[string]any {
	payload := summaryPayload(report.Summary())
	payload["options"] = nonEmptyJSON(report.Options)
	payload["result"] = nonEmptyJSON(report.Result)
	payload["archived"] = report.ChangelogKey != ""
	return payload
}

func summaryPayload(summary store.ReportSummary) map[string]any {
	return map[string]any{
		"id":            summary.ID,
		"documentId":    summary.DocumentID,
		"fingerprint":   summary.Fingerprint,
		"records":       summary.Records,
		"tiles":         summary.TileCount,
		"deletions":     summary.DeletionCount,
		"authors":       summary.AuthorCount,
		"finalLength":   summary.FinalLength,
		"createdAt":     summary.CreatedAt,
		"createdAtText": humanize.Time(summary.CreatedAt),
	}
}

func nonEmptyJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
