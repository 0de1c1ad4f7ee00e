package insights

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// logsStub replays GetQueryResults responses in order, repeating the last one.
type logsStub struct {
	mu sync.Mutex

	startInput *cloudwatchlogs.StartQueryInput
	startOut   *cloudwatchlogs.StartQueryOutput
	startErr   error

	responses []*cloudwatchlogs.GetQueryResultsOutput
	getErr    error
	getCalls  int

	stopped []string
}

func (s *logsStub) StartQuery(_ context.Context, params *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startInput = params
	return s.startOut, s.startErr
}

func (s *logsStub) GetQueryResults(_ context.Context, _ *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	idx := min(s.getCalls-1, len(s.responses)-1)
	return s.responses[idx], nil
}

func (s *logsStub) StopQuery(_ context.Context, params *cloudwatchlogs.StopQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StopQueryOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, aws.ToString(params.QueryId))
	return &cloudwatchlogs.StopQueryOutput{Success: true}, nil
}

func status(s types.QueryStatus, rows ...[]types.ResultField) *cloudwatchlogs.GetQueryResultsOutput {
	return &cloudwatchlogs.GetQueryResultsOutput{Status: s, Results: rows}
}

func resultRow(pairs ...string) []types.ResultField {
	fields := make([]types.ResultField, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields = append(fields, types.ResultField{Field: aws.String(pairs[i]), Value: aws.String(pairs[i+1])})
	}
	return fields
}

type publishCall struct {
	name      string
	timestamp int64
	value     int64
}

type publisherStub struct {
	calls []publishCall
	resp  json.RawMessage
	errs  map[int]error
}

func (p *publisherStub) Publish(_ context.Context, name string, timestampMillis, value int64) (json.RawMessage, error) {
	idx := len(p.calls)
	p.calls = append(p.calls, publishCall{name: name, timestamp: timestampMillis, value: value})
	if err, ok := p.errs[idx]; ok {
		return nil, err
	}
	return p.resp, nil
}
