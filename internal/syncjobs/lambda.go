package syncjobs

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
)

// HandleSQSEvent processes a Lambda SQS batch. Messages that should be
// redelivered are reported as batch item failures so the rest of the batch
// is deleted.
func (p *Processor) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	resp := events.SQSEventResponse{}
	for _, record := range event.Records {
		if err := p.Process(ctx, record.Body); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp, nil
}
