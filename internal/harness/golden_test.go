package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seqlab/beamrun/internal/device"
	"github.com/seqlab/beamrun/internal/plan"
)

func TestGoldenBaselineBundle(t *testing.T) {
	temp := device.NewSimSignal("temp", 293.15)
	pressure := device.NewSimSignal("pressure", 1.01)

	res := RunWithGolden(t, &Scenario{
		Name: "baseline_bundle",
		Plan: plan.Sequence("baseline",
			plan.OpenRun(nil),
			plan.Create("baseline"),
			plan.Read(temp),
			plan.Read(pressure),
			plan.Save(),
			plan.CloseRun(),
		),
	})
	require.NoError(t, res.Err)
}

func TestGoldenMotorScan(t *testing.T) {
	motor := device.NewSimMotor("motor")
	temp := device.NewSimSignal("temp", 293.15)

	res := RunWithGolden(t, &Scenario{
		Name: "motor_scan",
		Plan: plan.Scan(motor, []device.Readable{temp}, 0, 4, 5),
	})
	require.NoError(t, res.Err)
}

func TestGoldenFaultedMotor(t *testing.T) {
	motor := device.NewSimMotor("motor")
	motor.SetFault(errors.New("limit switch engaged"))
	temp := device.NewSimSignal("temp", 293.15)

	res := RunWithGolden(t, &Scenario{
		Name: "faulted_motor",
		Plan: plan.Scan(motor, []device.Readable{temp}, 0, 1, 2),
	})
	require.Error(t, res.Err)
}
