package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/metrics"
	"github.com/lava-community/pwa-api/internal/models"
	"github.com/lava-community/pwa-api/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type referralTestEnv struct {
	db          *gorm.DB
	clock       *testClock
	visits      *ReferralVisitService
	attribution *ReferralAttributionService
	sweeper     *ReferralSweeper
	codeRepo    *repository.GormReferralCodeRepository
}

func setupReferralServiceTest(t *testing.T, setting ReferralSetting) *referralTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:referral_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.NewReferralMetrics(prometheus.NewRegistry())
	visitRepo := repository.NewReferralVisitRepository(db)
	codeRepo := repository.NewReferralCodeRepository(db)
	referralRepo := repository.NewUserReferralRepository(db)

	sweeper := NewReferralSweeper(visitRepo, m)
	sweeper.now = clock.Now
	visits := NewReferralVisitService(visitRepo, NewQueueSweepScheduler(nil, sweeper), setting, m)
	visits.now = clock.Now
	attribution := NewReferralAttributionService(codeRepo, referralRepo, visitRepo, setting, m)
	attribution.now = clock.Now

	return &referralTestEnv{
		db:          db,
		clock:       clock,
		visits:      visits,
		attribution: attribution,
		sweeper:     sweeper,
		codeRepo:    codeRepo,
	}
}

func enabledReferralSetting() ReferralSetting {
	return NormalizeReferralSetting(ReferralSetting{Enabled: true, MatchWindowMinutes: 60, ExpiryDays: 30})
}

func referralHeaders(ip, ua string) http.Header {
	h := http.Header{}
	if ip != "" {
		h.Set(constants.HeaderForwardedFor, ip)
	}
	if ua != "" {
		h.Set(constants.HeaderUserAgent, ua)
	}
	return h
}

func createReferralTestCode(t *testing.T, env *referralTestEnv, code, status string) *models.ReferralCode {
	t.Helper()
	row := &models.ReferralCode{Code: code, Status: status, ReferrerUserID: "referrer-" + strings.ToLower(code)}
	if err := env.codeRepo.Create(context.Background(), row); err != nil {
		t.Fatalf("create referral code failed: %v", err)
	}
	return row
}

func recordTestVisit(t *testing.T, env *referralTestEnv, code, ip, ua string) RecordVisitResult {
	t.Helper()
	result, err := env.visits.RecordVisit(context.Background(), RecordVisitInput{
		ReferralData: ReferralData{Ref: code, CapturedAt: env.clock.Now().Format(time.RFC3339)},
		Headers:      referralHeaders(ip, ua),
	})
	if err != nil {
		t.Fatalf("record visit failed: %v", err)
	}
	if !result.Success || result.VisitID == "" {
		t.Fatalf("expected recorded visit, got %+v", result)
	}
	return result
}

func matchTestVisit(t *testing.T, env *referralTestEnv, ip, ua string) MatchVisitResult {
	t.Helper()
	result, err := env.visits.MatchVisit(context.Background(), MatchVisitInput{Headers: referralHeaders(ip, ua)})
	if err != nil {
		t.Fatalf("match visit failed: %v", err)
	}
	return result
}

func countPendingVisits(t *testing.T, env *referralTestEnv) int64 {
	t.Helper()
	var total int64
	if err := env.db.Model(&models.PendingReferralVisit{}).Count(&total).Error; err != nil {
		t.Fatalf("count visits failed: %v", err)
	}
	return total
}

func TestRecordVisitDisabledWritesNothing(t *testing.T) {
	env := setupReferralServiceTest(t, ReferralSetting{Enabled: false})

	result, err := env.visits.RecordVisit(context.Background(), RecordVisitInput{
		ReferralData: ReferralData{Ref: "LAVA01", CapturedAt: env.clock.Now().Format(time.RFC3339)},
		Headers:      referralHeaders("9.9.9.9", "Mobile Safari"),
	})
	if err != nil {
		t.Fatalf("record visit failed: %v", err)
	}
	if result.Success || result.Error != constants.ReferralVisitErrorDisabled {
		t.Fatalf("expected disabled result, got %+v", result)
	}
	if countPendingVisits(t, env) != 0 {
		t.Fatalf("disabled recorder must not write rows")
	}
}

func TestRecordVisitNoIP(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())

	result, err := env.visits.RecordVisit(context.Background(), RecordVisitInput{
		ReferralData: ReferralData{Ref: "LAVA01", CapturedAt: env.clock.Now().Format(time.RFC3339)},
		Headers:      referralHeaders("", "Mobile Safari"),
	})
	if err != nil {
		t.Fatalf("record visit failed: %v", err)
	}
	if result.Success || result.Error != constants.ReferralVisitErrorNoIP {
		t.Fatalf("expected no_ip result, got %+v", result)
	}
	if countPendingVisits(t, env) != 0 {
		t.Fatalf("no_ip must not write rows")
	}
}

func TestRecordVisitRejectsInvalidInput(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	ctx := context.Background()

	if _, err := env.visits.RecordVisit(ctx, RecordVisitInput{
		ReferralData: ReferralData{Ref: "  ", CapturedAt: env.clock.Now().Format(time.RFC3339)},
		Headers:      referralHeaders("9.9.9.9", "ua"),
	}); err != ErrReferralCodeRequired {
		t.Fatalf("expected ErrReferralCodeRequired, got %v", err)
	}
	if _, err := env.visits.RecordVisit(ctx, RecordVisitInput{
		ReferralData: ReferralData{Ref: "LAVA01", CapturedAt: "yesterday"},
		Headers:      referralHeaders("9.9.9.9", "ua"),
	}); err == nil {
		t.Fatalf("expected malformed capturedAt to fail")
	}
}

func TestRecordVisitStoresSanitizedRow(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())

	params := map[string]interface{}{}
	for i := 0; i < 30; i++ {
		params[fmt.Sprintf("k%02d", i)] = strings.Repeat("v", 500)
	}
	params[strings.Repeat("x", 80)] = 42.0
	longUA := strings.Repeat("u", 600)
	headers := referralHeaders("9.9.9.9, 10.0.0.1", longUA)
	headers.Set(constants.HeaderCFConnectingIP, "1.1.1.1")

	result, err := env.visits.RecordVisit(context.Background(), RecordVisitInput{
		ReferralData: ReferralData{Ref: " lava01 ", Tag: "spring", Source: "twitter", FullParams: params, CapturedAt: "2026-05-01T11:59:00Z"},
		Fingerprint:  Fingerprint{ScreenResolution: "390x844"},
		Headers:      headers,
	})
	if err != nil || !result.Success {
		t.Fatalf("record visit failed: %+v err=%v", result, err)
	}

	var row models.PendingReferralVisit
	if err := env.db.First(&row, "id = ?", result.VisitID).Error; err != nil {
		t.Fatalf("load visit failed: %v", err)
	}
	if row.IPAddress != "9.9.9.9" {
		t.Fatalf("expected first forwarded ip, got %q", row.IPAddress)
	}
	if len([]rune(row.UserAgent)) != constants.ReferralUserAgentMaxRunes {
		t.Fatalf("expected ua truncated to %d, got %d", constants.ReferralUserAgentMaxRunes, len([]rune(row.UserAgent)))
	}
	if row.ReferralCode != "LAVA01" || row.CustomTag != "spring" || row.Source != "twitter" || row.ScreenResolution != "390x844" {
		t.Fatalf("unexpected stored referral fields: %+v", row)
	}
	if len(row.FullParams) != constants.ReferralFullParamsMaxKeys {
		t.Fatalf("expected %d params, got %d", constants.ReferralFullParamsMaxKeys, len(row.FullParams))
	}
	for key, value := range row.FullParams {
		if len([]rune(key)) > constants.ReferralFullParamKeyMaxRune || len([]rune(value)) > constants.ReferralFullParamValMaxRune {
			t.Fatalf("param exceeds bounds: %q=%d runes", key, len([]rune(value)))
		}
	}
	if !row.ExpiresAt.Equal(env.clock.Now().Add(60 * time.Minute)) {
		t.Fatalf("unexpected expires_at: %s", row.ExpiresAt)
	}
	if row.CapturedAt == nil || !row.CapturedAt.Equal(time.Date(2026, 5, 1, 11, 59, 0, 0, time.UTC)) {
		t.Fatalf("unexpected captured_at: %v", row.CapturedAt)
	}
}

func TestRecordVisitSweepsExpiredRows(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())

	recordTestVisit(t, env, "OLD01", "5.5.5.5", "ua")
	env.clock.Advance(2 * time.Hour)
	recordTestVisit(t, env, "NEW01", "6.6.6.6", "ua")

	if got := countPendingVisits(t, env); got != 1 {
		t.Fatalf("expected expired visit swept on record, got %d rows", got)
	}
}

func TestMatchVisitExpiryWindow(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	recordTestVisit(t, env, "LAVA01", "9.9.9.9", "Mobile Safari")

	env.clock.Advance(59 * time.Minute)
	result := matchTestVisit(t, env, "9.9.9.9", "Mobile Safari")
	if !result.Matched || result.ReferralData.Ref != "LAVA01" {
		t.Fatalf("expected match at +59min, got %+v", result)
	}

	env.clock.Advance(2 * time.Minute)
	if deleted := env.sweeper.SweepExpired(context.Background()); deleted != 1 {
		t.Fatalf("expected sweep to delete 1 row, got %d", deleted)
	}
	result = matchTestVisit(t, env, "9.9.9.9", "Mobile Safari")
	if result.Matched || result.Reason != constants.ReferralMatchReasonNoMatch {
		t.Fatalf("expected no_match at +61min, got %+v", result)
	}
}

func TestMatchVisitExpiredRowIgnoredBeforeSweep(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	recordTestVisit(t, env, "LAVA01", "9.9.9.9", "Mobile Safari")

	env.clock.Advance(61 * time.Minute)
	result := matchTestVisit(t, env, "9.9.9.9", "Mobile Safari")
	if result.Matched || result.Reason != constants.ReferralMatchReasonNoMatch {
		t.Fatalf("expected expired visit ignored, got %+v", result)
	}
}

func TestMatchVisitAmbiguous(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	recordTestVisit(t, env, "CODEA", "7.7.7.7", "Shared UA")
	recordTestVisit(t, env, "CODEB", "7.7.7.7", "Shared UA")

	result := matchTestVisit(t, env, "7.7.7.7", "Shared UA")
	if result.Matched || result.ReferralData != nil || result.Reason != constants.ReferralMatchReasonMultipleMatches {
		t.Fatalf("expected multiple_matches, got %+v", result)
	}
}

func TestMatchVisitUniqueDoesNotConsume(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	recordTestVisit(t, env, "ABC123", "1.2.3.4", "UA-X")
	recordTestVisit(t, env, "OTHER1", "1.2.3.4", "UA-Y")

	for i := 0; i < 2; i++ {
		result := matchTestVisit(t, env, "1.2.3.4", "UA-X")
		if !result.Matched || result.ReferralData.Ref != "ABC123" {
			t.Fatalf("attempt %d: expected ABC123, got %+v", i, result)
		}
	}
	if countPendingVisits(t, env) != 2 {
		t.Fatalf("match must not delete pending visits")
	}
}

func TestMatchVisitDisabledAndNoIP(t *testing.T) {
	disabled := setupReferralServiceTest(t, ReferralSetting{Enabled: false})
	if result := matchTestVisit(t, disabled, "1.2.3.4", "UA-X"); result.Reason != constants.ReferralMatchReasonDisabled {
		t.Fatalf("expected disabled, got %+v", result)
	}

	env := setupReferralServiceTest(t, enabledReferralSetting())
	if result := matchTestVisit(t, env, "", "UA-X"); result.Reason != constants.ReferralMatchReasonNoIP {
		t.Fatalf("expected no_ip, got %+v", result)
	}
}

func TestMatchVisitScreenResolutionTightening(t *testing.T) {
	setting := enabledReferralSetting()
	setting.MatchScreenResolution = true
	env := setupReferralServiceTest(t, setting)
	ctx := context.Background()

	for _, item := range []struct{ code, screen string }{{"PHONE1", "390x844"}, {"TABLET", "820x1180"}} {
		if _, err := env.visits.RecordVisit(ctx, RecordVisitInput{
			ReferralData: ReferralData{Ref: item.code, CapturedAt: env.clock.Now().Format(time.RFC3339)},
			Fingerprint:  Fingerprint{ScreenResolution: item.screen},
			Headers:      referralHeaders("3.3.3.3", "Safari"),
		}); err != nil {
			t.Fatalf("record visit failed: %v", err)
		}
	}

	result, err := env.visits.MatchVisit(ctx, MatchVisitInput{
		Fingerprint: Fingerprint{ScreenResolution: "390x844"},
		Headers:     referralHeaders("3.3.3.3", "Safari"),
	})
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if !result.Matched || result.ReferralData.Ref != "PHONE1" {
		t.Fatalf("expected screen resolution to disambiguate, got %+v", result)
	}

	result, err = env.visits.MatchVisit(ctx, MatchVisitInput{Headers: referralHeaders("3.3.3.3", "Safari")})
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Reason != constants.ReferralMatchReasonMultipleMatches {
		t.Fatalf("expected ambiguity without caller screen, got %+v", result)
	}
}

func convertInput(userID, code string, capturedAt time.Time) ConvertInput {
	return ConvertInput{
		Identity:     Identity{UserID: userID, Email: userID + "@example.com"},
		ReferralData: ReferralData{Ref: code, CapturedAt: capturedAt.Format(time.RFC3339)},
		Headers:      referralHeaders("9.9.9.9", "Mobile Safari"),
	}
}

func TestConvertIdempotent(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	code := createReferralTestCode(t, env, "LAVA01", constants.ReferralCodeStatusApproved)
	createReferralTestCode(t, env, "LAVA02", constants.ReferralCodeStatusApproved)
	ctx := context.Background()

	first, err := env.attribution.Convert(ctx, convertInput("user-1", "LAVA01", env.clock.Now()))
	if err != nil || !first.Attributed {
		t.Fatalf("expected first convert attributed, got %+v err=%v", first, err)
	}
	for _, ref := range []string{"LAVA01", "LAVA02"} {
		again, err := env.attribution.Convert(ctx, convertInput("user-1", ref, env.clock.Now()))
		if err != nil {
			t.Fatalf("second convert failed: %v", err)
		}
		if again.Attributed || again.Reason != constants.ReferralConvertReasonAlreadyAttributed {
			t.Fatalf("expected already_attributed, got %+v", again)
		}
	}

	reloaded, err := env.codeRepo.GetByID(ctx, code.ID)
	if err != nil || reloaded == nil || reloaded.UsageCount != 1 {
		t.Fatalf("expected usage_count=1, got %+v err=%v", reloaded, err)
	}
	record, err := env.attribution.GetAttribution(ctx, "user-1")
	if err != nil || record == nil {
		t.Fatalf("expected stored attribution, err=%v", err)
	}
	if record.ReferralCode != "LAVA01" || record.ClientIP != "9.9.9.9" || record.UserEmail != "user-1@example.com" {
		t.Fatalf("unexpected attribution record: %+v", record)
	}
}

func TestConvertSoftExpiry(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	createReferralTestCode(t, env, "LAVA01", constants.ReferralCodeStatusApproved)

	result, err := env.attribution.Convert(context.Background(), convertInput("user-old", "LAVA01", env.clock.Now().Add(-31*24*time.Hour)))
	if err != nil {
		t.Fatalf("expired convert must not error: %v", err)
	}
	if result.Attributed || result.Reason != constants.ReferralConvertReasonExpired {
		t.Fatalf("expected expired, got %+v", result)
	}

	result, err = env.attribution.Convert(context.Background(), convertInput("user-fresh", "LAVA01", env.clock.Now().Add(-29*24*time.Hour)))
	if err != nil || !result.Attributed {
		t.Fatalf("expected 29-day-old capture attributed, got %+v err=%v", result, err)
	}
}

func TestConvertCodeNotApproved(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	createReferralTestCode(t, env, "PEND01", constants.ReferralCodeStatusPending)
	expired := createReferralTestCode(t, env, "EXPIRED", constants.ReferralCodeStatusApproved)
	past := env.clock.Now().Add(-time.Hour)
	if err := env.db.Model(expired).Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire code failed: %v", err)
	}

	for _, ref := range []string{"PEND01", "EXPIRED", "MISSING"} {
		result, err := env.attribution.Convert(context.Background(), convertInput("user-"+ref, ref, env.clock.Now()))
		if err != nil {
			t.Fatalf("convert %s failed: %v", ref, err)
		}
		if result.Attributed || result.Reason != constants.ReferralConvertReasonCodeNotApproved {
			t.Fatalf("code %s: expected code_not_approved, got %+v", ref, result)
		}
	}
}

// staleSnapshotCodeRepository 事务外总是返回旧的 approved 快照，事务内读库
type staleSnapshotCodeRepository struct {
	repository.ReferralCodeRepository
	snapshot    models.ReferralCode
	invalidated []string
}

func (r *staleSnapshotCodeRepository) GetByCode(context.Context, string) (*models.ReferralCode, error) {
	row := r.snapshot
	return &row, nil
}

func (r *staleSnapshotCodeRepository) InvalidateSnapshot(_ context.Context, code string) {
	r.invalidated = append(r.invalidated, code)
}

func TestConvertRechecksRevokedCodeInsideTransaction(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	code := createReferralTestCode(t, env, "LAVA01", constants.ReferralCodeStatusApproved)
	ctx := context.Background()

	stale := &staleSnapshotCodeRepository{ReferralCodeRepository: env.codeRepo, snapshot: *code}
	env.attribution.codeRepo = stale
	if err := env.db.Model(code).Update("status", constants.ReferralCodeStatusPending).Error; err != nil {
		t.Fatalf("revoke code failed: %v", err)
	}

	result, err := env.attribution.Convert(ctx, convertInput("user-revoked", "LAVA01", env.clock.Now()))
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if result.Attributed || result.Reason != constants.ReferralConvertReasonCodeNotApproved {
		t.Fatalf("expected code_not_approved for revoked code, got %+v", result)
	}
	if len(stale.invalidated) != 1 || stale.invalidated[0] != "LAVA01" {
		t.Fatalf("expected stale snapshot invalidated, got %v", stale.invalidated)
	}

	total, err := repository.NewUserReferralRepository(env.db).CountByCodeID(ctx, code.ID)
	if err != nil || total != 0 {
		t.Fatalf("expected no attribution row, got %d err=%v", total, err)
	}
	reloaded, err := env.codeRepo.GetByID(ctx, code.ID)
	if err != nil || reloaded.UsageCount != 0 {
		t.Fatalf("expected usage_count untouched, got %+v err=%v", reloaded, err)
	}
}

func TestConvertDisabledAndInvalid(t *testing.T) {
	disabled := setupReferralServiceTest(t, ReferralSetting{Enabled: false})
	result, err := disabled.attribution.Convert(context.Background(), convertInput("user-1", "LAVA01", disabled.clock.Now()))
	if err != nil || result.Reason != constants.ReferralConvertReasonDisabled {
		t.Fatalf("expected disabled, got %+v err=%v", result, err)
	}

	env := setupReferralServiceTest(t, enabledReferralSetting())
	if _, err := env.attribution.Convert(context.Background(), convertInput("", "LAVA01", env.clock.Now())); err != ErrIdentityRequired {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	input := convertInput("user-1", "LAVA01", env.clock.Now())
	input.ReferralData.CapturedAt = ""
	if _, err := env.attribution.Convert(context.Background(), input); err != ErrReferralCapturedAt {
		t.Fatalf("expected ErrReferralCapturedAt, got %v", err)
	}
}

// racingReferralRepository 模拟并发：存在性检查总是返回未归因
type racingReferralRepository struct {
	repository.UserReferralRepository
}

func (r racingReferralRepository) GetByUserID(context.Context, string) (*models.UserReferral, error) {
	return nil, nil
}

func (r racingReferralRepository) WithTx(tx *gorm.DB) repository.UserReferralRepository {
	return racingReferralRepository{UserReferralRepository: r.UserReferralRepository.WithTx(tx)}
}

func TestConvertConcurrentDuplicateRollsBack(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	code := createReferralTestCode(t, env, "LAVA01", constants.ReferralCodeStatusApproved)
	ctx := context.Background()

	first, err := env.attribution.Convert(ctx, convertInput("user-race", "LAVA01", env.clock.Now()))
	if err != nil || !first.Attributed {
		t.Fatalf("first convert failed: %+v err=%v", first, err)
	}

	env.attribution.referralRepo = racingReferralRepository{UserReferralRepository: repository.NewUserReferralRepository(env.db)}
	second, err := env.attribution.Convert(ctx, convertInput("user-race", "LAVA01", env.clock.Now()))
	if err != nil {
		t.Fatalf("racing convert must not error: %v", err)
	}
	if second.Attributed || second.Reason != constants.ReferralConvertReasonAlreadyAttributed {
		t.Fatalf("expected already_attributed from unique constraint, got %+v", second)
	}

	reloaded, err := env.codeRepo.GetByID(ctx, code.ID)
	if err != nil || reloaded.UsageCount != 1 {
		t.Fatalf("expected usage_count rolled back to 1, got %+v err=%v", reloaded, err)
	}
	total, err := repository.NewUserReferralRepository(env.db).CountByCodeID(ctx, code.ID)
	if err != nil || total != 1 {
		t.Fatalf("expected single attribution row, got %d err=%v", total, err)
	}
}

func TestConvertConsumeVisitSwitch(t *testing.T) {
	for _, consume := range []bool{false, true} {
		setting := enabledReferralSetting()
		setting.ConsumeVisitOnConvert = consume
		env := setupReferralServiceTest(t, setting)
		createReferralTestCode(t, env, "LAVA01", constants.ReferralCodeStatusApproved)
		recordTestVisit(t, env, "LAVA01", "9.9.9.9", "Mobile Safari")

		result, err := env.attribution.Convert(context.Background(), convertInput("user-consume", "LAVA01", env.clock.Now()))
		if err != nil || !result.Attributed {
			t.Fatalf("convert failed: %+v err=%v", result, err)
		}
		match := matchTestVisit(t, env, "9.9.9.9", "Mobile Safari")
		if consume && match.Matched {
			t.Fatalf("expected visit consumed after convert, got %+v", match)
		}
		if !consume && !match.Matched {
			t.Fatalf("expected visit retained after convert, got %+v", match)
		}
	}
}

func TestReferralEndToEnd(t *testing.T) {
	env := setupReferralServiceTest(t, enabledReferralSetting())
	createReferralTestCode(t, env, "LAVA01", constants.ReferralCodeStatusApproved)
	ctx := context.Background()
	t0 := env.clock.Now()

	recordTestVisit(t, env, "LAVA01", "9.9.9.9", "Mobile Safari")
	env.clock.Advance(10 * time.Minute)

	match := matchTestVisit(t, env, "9.9.9.9", "Mobile Safari")
	if !match.Matched || match.ReferralData.Ref != "LAVA01" {
		t.Fatalf("expected LAVA01 match, got %+v", match)
	}
	if match.ReferralData.CapturedAt == nil || !match.ReferralData.CapturedAt.Equal(t0) {
		t.Fatalf("expected original capturedAt %s, got %v", t0, match.ReferralData.CapturedAt)
	}

	payload := ReferralData{
		Ref:        match.ReferralData.Ref,
		Tag:        match.ReferralData.Tag,
		Source:     match.ReferralData.Source,
		CapturedAt: match.ReferralData.CapturedAt.Format(time.RFC3339),
	}
	identity := Identity{UserID: "fresh-user", Email: "fresh@example.com"}
	first, err := env.attribution.Convert(ctx, ConvertInput{Identity: identity, ReferralData: payload, Headers: referralHeaders("9.9.9.9", "Mobile Safari")})
	if err != nil || !first.Attributed {
		t.Fatalf("expected attributed, got %+v err=%v", first, err)
	}
	second, err := env.attribution.Convert(ctx, ConvertInput{Identity: identity, ReferralData: payload, Headers: referralHeaders("9.9.9.9", "Mobile Safari")})
	if err != nil || second.Attributed || second.Reason != constants.ReferralConvertReasonAlreadyAttributed {
		t.Fatalf("expected already_attributed, got %+v err=%v", second, err)
	}
}
