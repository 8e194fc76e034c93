package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/agriai/server/internal/models"
)

// topPredictions caps how many ranked labels an analysis keeps.
const topPredictions = 3

// VertexClassifier calls a deployed crop-disease image classification
// endpoint on Vertex AI.
type VertexClassifier struct {
	client   *aiplatform.PredictionClient
	endpoint string
}

// NewVertexClassifier creates a prediction client bound to the deployed
// endpoint projects/{project}/locations/{location}/endpoints/{endpointID}.
func NewVertexClassifier(ctx context.Context, projectID, location, endpointID string) (*VertexClassifier, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)))

	client, err := aiplatform.NewPredictionClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexClassifier{
		client:   client,
		endpoint: fmt.Sprintf("projects/%s/locations/%s/endpoints/%s", projectID, location, endpointID),
	}, nil
}

// Classify sends the image and returns the ranked predictions, highest
// confidence first. Inputs the endpoint can never accept come back wrapped
// in ErrRejected so callers do not retry them.
func (v *VertexClassifier) Classify(ctx context.Context, image []byte, contentType string) ([]models.Prediction, error) {
	instance, err := structpb.NewStruct(map[string]interface{}{
		"content": base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	params, err := structpb.NewStruct(map[string]interface{}{
		"confidenceThreshold": 0.0,
		"maxPredictions":      topPredictions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create parameters: %w", err)
	}

	req := &aiplatformpb.PredictRequest{
		Endpoint:   v.endpoint,
		Instances:  []*structpb.Value{structpb.NewStructValue(instance)},
		Parameters: structpb.NewStructValue(params),
	}

	resp, err := v.client.Predict(ctx, req)
	if err != nil {
		if s, ok := status.FromError(err); ok &&
			(s.Code() == codes.InvalidArgument || s.Code() == codes.FailedPrecondition) {
			return nil, fmt.Errorf("%w: %s", ErrRejected, s.Message())
		}
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}

	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("%w: no predictions returned", ErrRejected)
	}

	// Extract ranked labels from the AutoML image classification shape.
	prediction := resp.Predictions[0].GetStructValue()
	names := prediction.GetFields()["displayNames"].GetListValue().GetValues()
	confidences := prediction.GetFields()["confidences"].GetListValue().GetValues()

	out := make([]models.Prediction, 0, len(names))
	for i, name := range names {
		if i >= len(confidences) {
			break
		}
		out = append(out, models.Prediction{
			Label:      name.GetStringValue(),
			Confidence: confidences[i].GetNumberValue(),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: prediction payload had no labels", ErrRejected)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > topPredictions {
		out = out[:topPredictions]
	}
	return out, nil
}

// Close releases the Vertex AI client resources.
func (v *VertexClassifier) Close() error {
	return v.client.Close()
}
