package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/replicator/pkg/core"
)

func sample() core.PoseSample {
	pose := core.NewPoseSet()
	pose.Position = mgl32.Vec3{1, 2, 3}
	pose.Velocity = mgl32.Vec3{3, 4, 0}
	return core.PoseSample{
		ObjectID: uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Time:     time.Unix(1700000000, 0),
		Pose:     pose,
	}
}

func TestPosePoint(t *testing.T) {
	line := influxdb2_write.PointToLineProtocol(PosePoint(sample()), time.Second)

	assert.True(t, strings.HasPrefix(line, "object_pose,object=11111111-2222-3333-4444-555555555555 "))
	assert.Contains(t, line, "px=1")
	assert.Contains(t, line, "pz=3")
	assert.Contains(t, line, "qw=1")
	assert.Contains(t, line, "speed=5")
	assert.True(t, strings.HasSuffix(line, " 1700000000"))
}

func TestNewManager_Bucket(t *testing.T) {
	t.Cleanup(viper.Reset)

	m := NewManager(zerolog.Nop(), "")
	assert.Equal(t, DefaultBucket, m.PoseBucket())

	viper.Set("influx.bucket", "history")
	m = NewManager(zerolog.Nop(), "")
	assert.Equal(t, "history", m.PoseBucket())
}

func TestConnect_Disabled(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("influx.enabled", false)

	m := NewManager(zerolog.Nop(), "")
	assert.Error(t, m.Connect())
	assert.False(t, m.IsValid)
}

func TestRecordPoses_BackupWriter(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.Nop(), "")
	m.BackupWriter = gzip.NewWriter(&buf)

	require.NoError(t, m.RecordPoses(context.Background(), []core.PoseSample{sample(), sample()}))
	require.NoError(t, m.Close())

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], PoseMeasurement+","))
}

func TestWritePoint_NoWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.WritePoint(context.Background(), m.PoseBucket(), PosePoint(sample()))
	assert.Error(t, err)
}

func TestWritePoint_UnknownBucket(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	m.IsValid = true
	err := m.WritePoint(context.Background(), "nope", PosePoint(sample()))
	assert.Error(t, err)
}
