/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"reflect"
	"time"

	"go.uber.org/mock/gomock"
)

// mockClockAdj is a hand-written stand-in for what `mockgen -source
// clock.go` would produce for the ClockAdj interface; kept small and
// local to this package's tests rather than checked in as generated
// boilerplate under a mocks/ directory.
type mockClockAdj struct {
	ctrl     *gomock.Controller
	recorder *mockClockAdjRecorder
}

type mockClockAdjRecorder struct{ mock *mockClockAdj }

func newMockClockAdj(ctrl *gomock.Controller) *mockClockAdj {
	m := &mockClockAdj{ctrl: ctrl}
	m.recorder = &mockClockAdjRecorder{mock: m}
	return m
}

func (m *mockClockAdj) EXPECT() *mockClockAdjRecorder { return m.recorder }

func (m *mockClockAdj) ClockID() int32 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ClockID")
	return ret[0].(int32)
}

func (mr *mockClockAdjRecorder) ClockID() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ClockID", reflect.TypeOf((*mockClockAdj)(nil).ClockID))
}

func (m *mockClockAdj) FrequencyPPB() (float64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "FrequencyPPB")
	err, _ := ret[1].(error)
	return ret[0].(float64), err
}

func (mr *mockClockAdjRecorder) FrequencyPPB() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "FrequencyPPB", reflect.TypeOf((*mockClockAdj)(nil).FrequencyPPB))
}

func (m *mockClockAdj) AdjFreqPPB(freqPPB float64) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "AdjFreqPPB", freqPPB)
	err, _ := ret[0].(error)
	return err
}

func (mr *mockClockAdjRecorder) AdjFreqPPB(freqPPB any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "AdjFreqPPB", reflect.TypeOf((*mockClockAdj)(nil).AdjFreqPPB), freqPPB)
}

func (m *mockClockAdj) Step(step time.Duration) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Step", step)
	err, _ := ret[0].(error)
	return err
}

func (mr *mockClockAdjRecorder) Step(step any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Step", reflect.TypeOf((*mockClockAdj)(nil).Step), step)
}

func (m *mockClockAdj) SetLeap(dir int) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetLeap", dir)
	err, _ := ret[0].(error)
	return err
}

func (mr *mockClockAdjRecorder) SetLeap(dir any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetLeap", reflect.TypeOf((*mockClockAdj)(nil).SetLeap), dir)
}

func (m *mockClockAdj) MaxFreqPPB() float64 {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "MaxFreqPPB")
	return ret[0].(float64)
}

func (mr *mockClockAdjRecorder) MaxFreqPPB() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "MaxFreqPPB", reflect.TypeOf((*mockClockAdj)(nil).MaxFreqPPB))
}
