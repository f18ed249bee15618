package compliance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cashkiosk/internal/compliance"
	"cashkiosk/internal/compliance/mocks"
	"cashkiosk/internal/customer/models"
	"cashkiosk/pkg/requestcontext"
)

type TrackerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	tracker   *compliance.Tracker
	now       time.Time
	ctx       context.Context
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	var err error
	s.tracker, err = compliance.NewTracker(s.mockStore,
		compliance.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.now = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *TrackerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *TrackerSuite) patch(data map[string]any) models.Patch {
	p, err := models.DefaultRegistry().ParsePatch(data)
	s.Require().NoError(err)
	return p
}

func (s *TrackerSuite) TestNewTrackerRequiresStore() {
	_, err := compliance.NewTracker(nil)
	s.Error(err)
	s.Contains(err.Error(), "override store is required")
}

func (s *TrackerSuite) TestRecordWritesOneRecordPerSetOverride() {
	customerID := uuid.New()
	patch := s.patch(map[string]any{
		"frontFacingCamOverride": "ok",
		"sanctionsCheckOverride": "verified",
		"smsOverride":            nil,
		"idCardAt":               "2026-06-01T09:00:00Z",
	})

	var written []*compliance.Override
	s.mockStore.EXPECT().CreateOverride(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, o *compliance.Override) error {
			written = append(written, o)
			return nil
		}).Times(2)

	records, err := s.tracker.Record(s.ctx, customerID, patch, "user-42")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(records, written)

	s.Equal(models.ComplianceFrontCamera, records[0].ComplianceType)
	s.Equal("ok", records[0].Verification)
	s.Equal(models.ComplianceSanctions, records[1].ComplianceType)
	s.Equal("verified", records[1].Verification)
	for _, r := range records {
		s.Equal(customerID, r.CustomerID)
		s.Require().NotNil(r.OverrideBy)
		s.Equal("user-42", *r.OverrideBy)
		s.Equal(s.now, r.CreatedAt)
		s.NotEqual(uuid.Nil, r.ID)
	}
}

func (s *TrackerSuite) TestRecordWithoutActorLeavesOverrideByNil() {
	patch := s.patch(map[string]any{"authorizedOverride": "blocked"})
	s.mockStore.EXPECT().CreateOverride(gomock.Any(), gomock.Any()).Return(nil)

	records, err := s.tracker.Record(s.ctx, uuid.New(), patch, "")
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Nil(records[0].OverrideBy)
}

func (s *TrackerSuite) TestRecordSkipsNonOverrideFields() {
	patch := s.patch(map[string]any{"idCardAt": "2026-06-01T09:00:00Z", "name": "Ana"})

	records, err := s.tracker.Record(s.ctx, uuid.New(), patch, "user-42")
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *TrackerSuite) TestRecordPropagatesStoreFailure() {
	patch := s.patch(map[string]any{"smsOverride": "ok", "idCardDataOverride": "ok"})
	storeErr := errors.New("db down")
	s.mockStore.EXPECT().CreateOverride(gomock.Any(), gomock.Any()).Return(storeErr)

	records, err := s.tracker.Record(s.ctx, uuid.New(), patch, "user-42")
	s.Require().Error(err)
	s.ErrorIs(err, storeErr)
	s.Nil(records)
}

func TestDetectIgnoresAttributionColumns(t *testing.T) {
	patch, err := models.DefaultRegistry().ParsePatch(map[string]any{"idCardPhotoOverride": "ok"})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	before := compliance.Detect(uuid.New(), patch, "user-1", now)
	after := compliance.Detect(uuid.New(), patch.WithAttribution("user-1"), "user-1", now)
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("expected exactly one record before and after attribution, got %d and %d", len(before), len(after))
	}
}
