package web

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/digest"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/practice"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/sync"
)

var testNow = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	defaults := domain.DefaultSettings()
	defaults.Timezone = "UTC"
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"), storage.WithDefaultSettings(defaults))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := practice.NewService(db, practice.WithRand(rand.New(rand.NewPCG(7, 11))))
	srv := NewServer(db, svc, t.TempDir())
	srv.now = func() time.Time { return testNow }
	return srv, db
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

// seedDue stores an eligible sentence with audio that is due at testNow.
func seedDue(t *testing.T, db *storage.DB, id string) domain.Sentence {
	t.Helper()
	ctx := context.Background()
	s := domain.NewSentence("hu", "English "+id, "audio/"+id, testNow.Add(-48*time.Hour), domain.WithID(id))
	s.IsEligible = true
	s.Scheduling.DueAt = testNow.Add(-time.Hour)
	if err := db.SaveSentence(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveAudio(ctx, storage.AudioBlob{SentenceID: id, Filename: id + ".mp3", Data: []byte("ID3")}); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSentenceLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/sentences", createSentenceRequest{English: "Good morning", Target: "Jó reggelt"})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[createSentenceResponse](t, rec)
	if created.Sentence.IsEligible || created.Sentence.LanguageCode != "hu" || len(created.Duplicates) != 0 {
		t.Fatalf("created = %+v", created)
	}
	id := created.Sentence.ID

	rec = do(t, srv, http.MethodPost, "/api/sentences", createSentenceRequest{English: "Good morning!"})
	expectStatus(t, rec, http.StatusCreated)
	if dup := decode[createSentenceResponse](t, rec); len(dup.Duplicates) != 1 || dup.Duplicates[0].Sentence.ID != id {
		t.Errorf("duplicates = %+v", dup.Duplicates)
	}

	rec = do(t, srv, http.MethodPost, "/api/sentences/"+id+"/approve", nil)
	expectStatus(t, rec, http.StatusOK)
	approved := decode[domain.Sentence](t, rec)
	if !approved.IsEligible || !approved.Scheduling.DueAt.Equal(testNow) {
		t.Errorf("approved = %+v", approved)
	}

	rec = do(t, srv, http.MethodGet, "/api/sentences?language=hu", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]domain.Sentence](t, rec); len(list) != 2 {
		t.Errorf("listed %d sentences, want 2", len(list))
	}

	expectStatus(t, do(t, srv, http.MethodDelete, "/api/sentences/"+id, nil), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodGet, "/api/sentences/"+id, nil), http.StatusNotFound)
	expectStatus(t, do(t, srv, http.MethodDelete, "/api/sentences/"+id, nil), http.StatusNotFound)
}

func TestCreateSentenceValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/sentences", createSentenceRequest{}), http.StatusBadRequest)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/sentences", []byte("{")), http.StatusBadRequest)
}

func TestFindDuplicates(t *testing.T) {
	srv, db := newTestServer(t)
	seedDue(t, db, "greet")

	rec := do(t, srv, http.MethodGet, "/api/duplicates?text=English+greet&field=english", nil)
	expectStatus(t, rec, http.StatusOK)
	if matches := decode[[]map[string]any](t, rec); len(matches) != 1 {
		t.Errorf("matches = %v", matches)
	}
	expectStatus(t, do(t, srv, http.MethodGet, "/api/duplicates?text=x&field=audio", nil), http.StatusBadRequest)
	expectStatus(t, do(t, srv, http.MethodGet, "/api/duplicates", nil), http.StatusBadRequest)
}

func TestSettingsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/settings", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.Settings](t, rec); got.DailyResetTime != "04:00" || got.CurrentLanguage != "hu" {
		t.Errorf("default settings = %+v", got)
	}

	updated := domain.DefaultSettings()
	updated.DailyResetTime = "06:15"
	updated.BoxIntervals = []int{1, 3}
	expectStatus(t, do(t, srv, http.MethodPut, "/api/settings", updated), http.StatusOK)
	rec = do(t, srv, http.MethodGet, "/api/settings", nil)
	if got := decode[domain.Settings](t, rec); got.DailyResetTime != "06:15" || len(got.BoxIntervals) != 2 {
		t.Errorf("saved settings = %+v", got)
	}

	updated.DailyResetTime = "6am"
	expectStatus(t, do(t, srv, http.MethodPut, "/api/settings", updated), http.StatusBadRequest)
}

func TestPracticeSessionFlow(t *testing.T) {
	srv, db := newTestServer(t)
	seedDue(t, db, "a")

	expectStatus(t, do(t, srv, http.MethodGet, "/api/sessions/incomplete", nil), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/sessions", startSessionRequest{Mode: "Sometimes", TargetMinutes: 5}), http.StatusBadRequest)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/sessions", startSessionRequest{Mode: "DueOnly"}), http.StatusBadRequest)

	rec := do(t, srv, http.MethodPost, "/api/sessions", startSessionRequest{Mode: "DueOnly", TargetMinutes: 5})
	expectStatus(t, rec, http.StatusOK)
	view := decode[sessionView](t, rec)
	if view.Current == nil || view.Current.ID != "a" || view.QueueLength != 1 {
		t.Fatalf("view = %+v", view)
	}
	base := "/api/sessions/" + view.Session.ID

	expectStatus(t, do(t, srv, http.MethodGet, "/api/sessions/incomplete", nil), http.StatusOK)
	expectStatus(t, do(t, srv, http.MethodGet, base, nil), http.StatusOK)

	expectStatus(t, do(t, srv, http.MethodPost, base+"/ratings", map[string]string{"sentenceId": "zzz", "rating": "Easy"}), http.StatusConflict)
	expectStatus(t, do(t, srv, http.MethodPost, base+"/ratings", map[string]string{"sentenceId": "a", "rating": "Great"}), http.StatusBadRequest)

	rec = do(t, srv, http.MethodPost, base+"/ratings", rateRequest{SentenceID: "a", Rating: domain.Easy})
	expectStatus(t, rec, http.StatusOK)
	rated := decode[rateResponse](t, rec)
	if rated.Event.Rating != domain.Easy || rated.Event.BoxLevelAfter != 2 || !rated.View.Done {
		t.Errorf("rate response = %+v", rated)
	}

	expectStatus(t, do(t, srv, http.MethodPost, base+"/ratings", rateRequest{SentenceID: "a", Rating: domain.Easy}), http.StatusConflict)

	rec = do(t, srv, http.MethodPost, base+"/end", nil)
	expectStatus(t, rec, http.StatusOK)
	if ended := decode[domain.Session](t, rec); ended.EndedAt == nil {
		t.Errorf("ended session = %+v", ended)
	}
	expectStatus(t, do(t, srv, http.MethodGet, base, nil), http.StatusNotFound)

	rec = do(t, srv, http.MethodGet, "/api/sessions", nil)
	if sessions := decode[[]domain.Session](t, rec); len(sessions) != 1 {
		t.Errorf("listed %d sessions, want 1", len(sessions))
	}

	rec = do(t, srv, http.MethodGet, "/api/stats", nil)
	expectStatus(t, rec, http.StatusOK)
	if stats := decode[digest.Summary](t, rec); stats.Streak != 1 || stats.DueNow != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func multipartUpload(t *testing.T, filename, contentType, data string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(data))
	mw.Close()
	return &body, mw.FormDataContentType()
}

func upload(t *testing.T, h http.Handler, method, path, filename, contentType string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartUpload(t, filename, contentType, "ID3 audio bytes", fields)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInboxFlow(t *testing.T) {
	srv, db := newTestServer(t)
	ctx := context.Background()

	expectStatus(t, upload(t, srv, http.MethodPost, "/api/inbox", "notes.txt", "text/plain", nil), http.StatusBadRequest)

	rec := upload(t, srv, http.MethodPost, "/api/inbox", "lesson.mp3", "audio/mpeg", map[string]string{"tags": "lesson, podcast"})
	expectStatus(t, rec, http.StatusCreated)
	pending := decode[domain.PendingAudio](t, rec)
	if pending.LanguageCode != "hu" || len(pending.Tags) != 2 {
		t.Fatalf("pending = %+v", pending)
	}

	rec = do(t, srv, http.MethodGet, "/api/inbox?language=hu", nil)
	if list := decode[[]domain.PendingAudio](t, rec); len(list) != 1 {
		t.Errorf("inbox has %d entries, want 1", len(list))
	}

	segments := inboxSentencesRequest{Segments: []domain.Segment{
		{ID: "segment-0", Start: 0, End: 1.5, OriginalText: "Jó reggelt kívánok.", EnglishText: "Good morning to you."},
		{ID: "segment-1", Start: 1.5, End: 2, OriginalText: "Öhm", EnglishText: ""},
	}}
	rec = do(t, srv, http.MethodPost, "/api/inbox/"+pending.ID+"/sentences", segments)
	expectStatus(t, rec, http.StatusCreated)
	sentences := decode[[]domain.Sentence](t, rec)
	if len(sentences) != 1 {
		t.Fatalf("created %d sentences, want 1", len(sentences))
	}
	s := sentences[0]
	if s.IsEligible || !strings.HasPrefix(s.TargetAudioURI, "inbox/"+pending.ID+"#t=") || s.AudioDurationSeconds() != 1.5 {
		t.Errorf("sentence = %+v", s)
	}
	if ok, _ := db.HasAudio(ctx, s.ID); !ok {
		t.Error("sentence audio not stored")
	}
	processed, _, err := db.PendingAudio(ctx, pending.ID)
	if err != nil || processed.ProcessedAt == nil || len(processed.Segments) != 2 {
		t.Errorf("processed = %+v, err = %v", processed, err)
	}

	rec = upload(t, srv, http.MethodPut, "/api/sentences/"+s.ID+"/audio", "replacement.mp3", "audio/mpeg", nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = do(t, srv, http.MethodGet, "/api/sentences/"+s.ID+"/audio", nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "audio/mpeg" || rec.Body.String() != "ID3 audio bytes" {
		t.Errorf("audio response %q %q", rec.Header().Get("Content-Type"), rec.Body.String())
	}

	expectStatus(t, do(t, srv, http.MethodDelete, "/api/inbox/"+pending.ID, nil), http.StatusNoContent)
	expectStatus(t, do(t, srv, http.MethodDelete, "/api/inbox/"+pending.ID, nil), http.StatusNotFound)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/inbox/missing/sentences", segments), http.StatusNotFound)
}

func TestExportImport(t *testing.T) {
	srv, db := newTestServer(t)
	seedDue(t, db, "a")
	seedDue(t, db, "b")

	rec := do(t, srv, http.MethodGet, "/api/export", nil)
	expectStatus(t, rec, http.StatusOK)
	backup := rec.Body.Bytes()

	if err := db.ClearAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec = do(t, srv, http.MethodPost, "/api/import", backup)
	expectStatus(t, rec, http.StatusOK)
	if counts := decode[map[string]int](t, rec); counts["sentences"] != 2 || counts["audioFiles"] != 2 {
		t.Errorf("import counts = %v", counts)
	}
	if ok, _ := db.HasAudio(context.Background(), "b"); !ok {
		t.Error("audio not restored")
	}
	expectStatus(t, do(t, srv, http.MethodPost, "/api/import", []byte(`"nope"`)), http.StatusBadRequest)
}

func TestSourcesAndSync(t *testing.T) {
	srv, _ := newTestServer(t)
	deckDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(deckDir, "deck.csv"), []byte("english,target\nThank you,Köszönöm\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, do(t, srv, http.MethodPost, "/api/sources", map[string]string{"path": ""}), http.StatusBadRequest)
	expectStatus(t, do(t, srv, http.MethodPost, "/api/sources", map[string]string{"path": deckDir}), http.StatusCreated)

	rec := do(t, srv, http.MethodPost, "/api/sync", nil)
	expectStatus(t, rec, http.StatusOK)
	if report := decode[sync.Report](t, rec); report.Inserted != 1 {
		t.Errorf("report = %+v", report)
	}

	rec = do(t, srv, http.MethodGet, "/api/sources", nil)
	sources := decode[[]storage.Source](t, rec)
	if len(sources) != 1 || sources[0].LastScanned == nil {
		t.Errorf("sources = %+v", sources)
	}
}
