package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimSignal_SetAndRead(t *testing.T) {
	sig := NewSimSignal("temp", 20.0)
	ctx := context.Background()

	st := sig.Set(ctx, 21.5)
	<-st.Done()
	require.NoError(t, st.Err())

	readings, err := sig.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.5, readings["temp"].Value)

	keys, err := sig.Describe()
	require.NoError(t, err)
	assert.Equal(t, "number", keys["temp"].Dtype)
	assert.Equal(t, "sim:temp", keys["temp"].Source)
}

func TestSimMotor_MoveCompletesAfterTravelTime(t *testing.T) {
	motor := NewSimMotor("mtr", WithTravelTime(30*time.Millisecond))
	ctx := context.Background()

	begin := time.Now()
	st := motor.Set(ctx, 2.5)

	select {
	case <-st.Done():
	case <-time.After(time.Second):
		t.Fatal("move did not complete")
	}
	require.NoError(t, st.Err())
	assert.GreaterOrEqual(t, time.Since(begin), 30*time.Millisecond)
	assert.Equal(t, 2.5, motor.Position())
}

func TestSimMotor_CancelLeavesPositionUnchanged(t *testing.T) {
	motor := NewSimMotor("mtr", WithTravelTime(500*time.Millisecond))
	st := motor.Set(context.Background(), 9.0)

	st.(*Future).Cancel()
	<-st.Done()
	assert.ErrorIs(t, st.Err(), ErrCanceled)
	assert.Equal(t, 0.0, motor.Position())
}

func TestSimMotor_FaultSurfacesInStatus(t *testing.T) {
	motor := NewSimMotor("mtr")
	motor.SetFault(errors.New("limit switch"))

	st := motor.Set(context.Background(), 1.0)
	<-st.Done()
	require.Error(t, st.Err())
	assert.Contains(t, st.Err().Error(), "limit switch")
	assert.Equal(t, 0.0, motor.Position())

	motor.ClearFault()
	st = motor.Set(context.Background(), 1.0)
	<-st.Done()
	require.NoError(t, st.Err())
}

func TestSimMotor_RejectsNonNumericTarget(t *testing.T) {
	motor := NewSimMotor("mtr")
	st := motor.Set(context.Background(), "sideways")
	<-st.Done()
	require.Error(t, st.Err())
}

func TestSimMotor_StageAppliesDirectivesInOrder(t *testing.T) {
	motor := NewSimMotor("mtr", WithStageDirectives(
		StageDirective{Signal: "velocity", Value: 5.0},
		StageDirective{Signal: "acceleration", Value: 2.0},
	))
	ctx := context.Background()

	staged, err := motor.Stage(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 1)

	v, _ := motor.Signal("velocity")
	a, _ := motor.Signal("acceleration")
	assert.Equal(t, 5.0, v)
	assert.Equal(t, 2.0, a)

	// Idempotent: second stage is a no-op
	staged, err = motor.Stage(ctx)
	require.NoError(t, err)
	assert.Empty(t, staged)

	unstaged, err := motor.Unstage(ctx)
	require.NoError(t, err)
	require.Len(t, unstaged, 1)

	v, _ = motor.Signal("velocity")
	a, _ = motor.Signal("acceleration")
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 0.5, a)

	// Idempotent: second unstage is a no-op
	unstaged, err = motor.Unstage(ctx)
	require.NoError(t, err)
	assert.Empty(t, unstaged)
}

func TestSimMotor_StageUnknownSignal(t *testing.T) {
	motor := NewSimMotor("mtr", WithStageDirectives(
		StageDirective{Signal: "warp", Value: 9.0},
	))
	_, err := motor.Stage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warp")
}

func TestSimDetector_GaussianResponse(t *testing.T) {
	motor := NewSimMotor("mtr")
	det := NewSimDetector("det", motor, WithResponse(0, 1, 10))
	ctx := context.Background()

	st := motor.Set(ctx, 0.0)
	<-st.Done()
	st = det.Trigger(ctx)
	<-st.Done()
	require.NoError(t, st.Err())

	readings, err := det.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, readings["det"].Value.(float64), 1e-9)

	// Off peak the intensity falls
	st = motor.Set(ctx, 2.0)
	<-st.Done()
	st = det.Trigger(ctx)
	<-st.Done()
	readings, err = det.Read(ctx)
	require.NoError(t, err)
	assert.Less(t, readings["det"].Value.(float64), 2.0)
}

func TestSimDetector_FaultSurfacesInStatus(t *testing.T) {
	det := NewSimDetector("det", nil)
	det.SetFault(errors.New("shutter stuck"))

	st := det.Trigger(context.Background())
	<-st.Done()
	require.Error(t, st.Err())
	assert.Equal(t, "det", st.DeviceName())
}

func TestBundle_StagesChildrenDepthFirst(t *testing.T) {
	m1 := NewSimMotor("m1")
	m2 := NewSimMotor("m2")
	det := NewSimDetector("det", m1)
	b := NewBundle("table", m1, m2, det)
	ctx := context.Background()

	assert.Len(t, b.Children(), 3)

	staged, err := b.Stage(ctx)
	require.NoError(t, err)
	require.Len(t, staged, 2) // detector is not stageable
	assert.Equal(t, "m1", staged[0].Name())
	assert.Equal(t, "m2", staged[1].Name())

	unstaged, err := b.Unstage(ctx)
	require.NoError(t, err)
	require.Len(t, unstaged, 2)
	assert.Equal(t, "m2", unstaged[0].Name())
	assert.Equal(t, "m1", unstaged[1].Name())
}

func TestBundle_ReadMergesChildren(t *testing.T) {
	m := NewSimMotor("m")
	det := NewSimDetector("det", m)
	b := NewBundle("table", m, det)

	readings, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, readings, "m")
	assert.Contains(t, readings, "det")

	keys, err := b.Describe()
	require.NoError(t, err)
	assert.Contains(t, keys, "m")
	assert.Contains(t, keys, "det")
}
