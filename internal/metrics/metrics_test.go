package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDownload(t *testing.T) {
	before := testutil.ToFloat64(TilesDownloaded)

	RecordDownload(5, 20)

	if got := testutil.ToFloat64(TilesDownloaded); got != before+1 {
		t.Errorf("TilesDownloaded = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(TilesCurrentProgress); got != 5 {
		t.Errorf("TilesCurrentProgress = %v, want 5", got)
	}
	if got := testutil.ToFloat64(TilesTotal); got != 20 {
		t.Errorf("TilesTotal = %v, want 20", got)
	}
}

func TestRecordLayerProgress(t *testing.T) {
	RecordLayerProgress(7, 42)

	got := testutil.ToFloat64(LayerProgress.WithLabelValues("7"))
	if got != 42 {
		t.Errorf("LayerProgress{zoom=7} = %v, want 42", got)
	}
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(FetchErrors)
	RecordError()
	if got := testutil.ToFloat64(FetchErrors); got != before+1 {
		t.Errorf("FetchErrors = %v, want %v", got, before+1)
	}
}

func TestRecordArchiveWrite(t *testing.T) {
	RecordArchiveWrite(10 * time.Millisecond)
	if got := testutil.CollectAndCount(ArchiveWriteDuration); got != 1 {
		t.Errorf("ArchiveWriteDuration metric count = %d, want 1", got)
	}
}
