package services

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	gocache "github.com/patrickmn/go-cache"

	"torgbot/internal/database"
)

const (
	hotCacheTTL    = 10 * time.Minute
	hotCacheSweep  = 20 * time.Minute
	reloadDebounce = 500 * time.Millisecond
)

// faqEntry is one canonical question-answer pair from the FAQ file.
// Fuzzy matching runs over canonical entries in order.
type faqEntry struct {
	question string
	answer   string
}

// FAQService answers frequent questions without touching the completion API.
// Lookups go through three tiers: an in-process hot cache keyed by question
// hash, an exact hash match in the persisted cache, then fuzzy matches
// against the canonical FAQ table. Generated answers are written back so the
// next identical question is free.
type FAQService struct {
	db  *database.DB
	hot *gocache.Cache

	file    string
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	canon    []faqEntry
	reloadAt *time.Timer
}

func NewFAQService(db *database.DB, faqFile string) *FAQService {
	return &FAQService{
		db:   db,
		hot:  gocache.New(hotCacheTTL, hotCacheSweep),
		file: faqFile,
	}
}

// defaultFAQ seeds courtesy answers so greetings never reach the API
var defaultFAQ = []faqEntry{
	{"привет", "Здравствуйте! Я помощник по торгам по банкротству. Задайте вопрос о покупке имущества на торгах, документах или процедуре участия."},
	{"здравствуйте", "Здравствуйте! Я помощник по торгам по банкротству. Задайте вопрос о покупке имущества на торгах, документах или процедуре участия."},
	{"спасибо", "Пожалуйста! Обращайтесь, если появятся ещё вопросы о торгах по банкротству."},
	{"благодарю", "Пожалуйста! Обращайтесь, если появятся ещё вопросы о торгах по банкротству."},
	{"до свидания", "До свидания! Удачных торгов!"},
	{"пока", "До свидания! Удачных торгов!"},
}

// Seed loads the default courtesy answers into the persisted cache for
// exact-hash hits, and builds the canonical FAQ table from the file. Only
// file entries take part in fuzzy matching; courtesy phrases match exactly,
// their short words would otherwise collide with real questions. In the
// persisted cache existing entries win: a seeded answer never overwrites one
// the bot has already learned. File entries are ordered by question so fuzzy
// tie-breaking stays deterministic across restarts.
func (s *FAQService) Seed() error {
	seeded := 0
	for _, e := range defaultFAQ {
		inserted, err := s.seedEntry(normalizeQuestion(e.question), e.answer)
		if err != nil {
			return err
		}
		if inserted {
			seeded++
		}
	}

	fileEntries, err := s.loadFile()
	if err != nil {
		return err
	}
	fileQuestions := make([]string, 0, len(fileEntries))
	for question := range fileEntries {
		fileQuestions = append(fileQuestions, question)
	}
	sort.Strings(fileQuestions)

	canon := make([]faqEntry, 0, len(fileQuestions))
	for _, question := range fileQuestions {
		e := faqEntry{normalizeQuestion(question), fileEntries[question]}
		canon = append(canon, e)

		inserted, err := s.seedEntry(e.question, e.answer)
		if err != nil {
			return err
		}
		if inserted {
			seeded++
		}
	}

	s.mu.Lock()
	s.canon = canon
	s.mu.Unlock()

	if seeded > 0 {
		log.Printf("📚 [FAQ] Seeded %d cache entries", seeded)
	}
	return nil
}

// loadFile reads the FAQ file as a question-to-answer JSON object.
// A missing file is fine, the defaults still cover courtesy phrases.
func (s *FAQService) loadFile() (map[string]string, error) {
	if s.file == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("⚠️  [FAQ] Invalid FAQ file %s: %v", s.file, err)
		return nil, nil
	}

	return entries, nil
}

func (s *FAQService) seedEntry(question, answer string) (bool, error) {
	normalized := normalizeQuestion(question)

	stmt := `INSERT OR IGNORE INTO faq_cache (question_hash, question, answer) VALUES (?, ?, ?)`
	if s.db.IsMySQL() {
		stmt = `INSERT IGNORE INTO faq_cache (question_hash, question, answer) VALUES (?, ?, ?)`
	}

	res, err := s.db.Exec(stmt, questionHash(normalized), normalized, answer)
	if err != nil {
		return false, err
	}

	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Watch reloads the FAQ file when it changes on disk.
// Editors fire several events per save, so reloads are debounced.
func (s *FAQService) Watch() error {
	if s.file == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(s.file); err != nil {
		// The file may not exist yet; watch its directory instead
		dir := "."
		if idx := strings.LastIndexByte(s.file, '/'); idx >= 0 {
			dir = s.file[:idx]
		}
		if dirErr := watcher.Add(dir); dirErr != nil {
			watcher.Close()
			s.watcher = nil
			return err
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, s.file) && event.Name != s.file {
					continue
				}
				s.scheduleReload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  [FAQ] Watcher error: %v", err)
			}
		}
	}()

	log.Printf("👀 [FAQ] Watching %s for changes", s.file)
	return nil
}

func (s *FAQService) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reloadAt != nil {
		s.reloadAt.Stop()
	}
	s.reloadAt = time.AfterFunc(reloadDebounce, func() {
		log.Printf("🔄 [FAQ] Reloading %s", s.file)
		if err := s.Seed(); err != nil {
			log.Printf("❌ [FAQ] Reload failed: %v", err)
		}
	})
}

// Close stops the file watcher
func (s *FAQService) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// Lookup finds a cached answer for the question, if any.
// A hit bumps the entry's usage counter and refreshes the hot cache.
func (s *FAQService) Lookup(question string) (string, bool) {
	normalized := normalizeQuestion(question)
	hash := questionHash(normalized)

	if answer, found := s.hot.Get(hash); found {
		return answer.(string), true
	}

	var answer string
	err := s.db.QueryRow(
		`SELECT answer FROM faq_cache WHERE question_hash = ?`, hash,
	).Scan(&answer)
	if err == nil {
		s.touch(hash, answer)
		return answer, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Printf("⚠️  [FAQ] Cache lookup failed: %v", err)
		return "", false
	}

	answer, found := s.fuzzyLookup(normalized)
	if found {
		// Write the answer back under the asked question's own hash so the
		// next identical question is an exact hit
		s.writeBack(hash, normalized, answer)
	}
	return answer, found
}

// fuzzyLookup matches the question against the canonical FAQ table.
// Substring tier first: a canonical question contained in the input. Then the
// word tier: a canonical question of two or more words, any of which appears
// in the input. First match wins within each tier, in canonical order.
func (s *FAQService) fuzzyLookup(normalized string) (string, bool) {
	s.mu.Lock()
	canon := s.canon
	s.mu.Unlock()

	for _, e := range canon {
		if strings.Contains(normalized, e.question) {
			return e.answer, true
		}
	}

	for _, e := range canon {
		words := strings.Fields(e.question)
		if len(words) < 2 {
			continue
		}
		for _, w := range words {
			if strings.Contains(normalized, w) {
				return e.answer, true
			}
		}
	}

	return "", false
}

// Store writes a generated answer back to the cache
func (s *FAQService) Store(question, answer string) {
	normalized := normalizeQuestion(question)
	s.writeBack(questionHash(normalized), normalized, answer)
}

func (s *FAQService) writeBack(hash, normalized, answer string) {
	stmt := `INSERT INTO faq_cache (question_hash, question, answer) VALUES (?, ?, ?)
		 ON CONFLICT(question_hash) DO UPDATE SET answer = excluded.answer, last_used = CURRENT_TIMESTAMP`
	if s.db.IsMySQL() {
		stmt = `INSERT INTO faq_cache (question_hash, question, answer) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE answer = VALUES(answer), last_used = CURRENT_TIMESTAMP`
	}

	if _, err := s.db.Exec(stmt, hash, normalized, answer); err != nil {
		log.Printf("⚠️  [FAQ] Cache store failed: %v", err)
		return
	}

	s.hot.Set(hash, answer, gocache.DefaultExpiration)
}

// touch bumps usage stats for a cache hit
func (s *FAQService) touch(hash, answer string) {
	s.hot.Set(hash, answer, gocache.DefaultExpiration)

	if _, err := s.db.Exec(
		`UPDATE faq_cache SET usage_count = usage_count + 1, last_used = CURRENT_TIMESTAMP WHERE question_hash = ?`,
		hash,
	); err != nil {
		log.Printf("⚠️  [FAQ] Usage update failed: %v", err)
	}
}

func normalizeQuestion(question string) string {
	normalized := strings.ToLower(strings.TrimSpace(question))
	normalized = strings.Trim(normalized, "?!.,")
	return strings.Join(strings.Fields(normalized), " ")
}

func questionHash(normalized string) string {
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

