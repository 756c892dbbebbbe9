package outbox

const classificationDecidedSchema = `{
  "type": "object",
  "title": "ClassificationDecided",
  "properties": {
    "decision_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "record_id": {"type": "string"},
    "model_id": {"type": "string"},
    "previous_label": {"type": "string"},
    "new_label": {"type": "string"},
    "source": {"type": "string"},
    "confidence": {"type": "number"},
    "decided_at": {"type": "string", "format": "date-time"}
  },
  "required": ["decision_id", "tenant_id", "record_id", "new_label", "source", "confidence", "decided_at"],
  "additionalProperties": false
}`

const modelActivatedSchema = `{
  "type": "object",
  "title": "ModelActivated",
  "properties": {
    "model_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "version": {"type": "string"},
    "activated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["model_id", "tenant_id", "version", "activated_at"],
  "additionalProperties": false
}`

const feedbackReceivedSchema = `{
  "type": "object",
  "title": "FeedbackReceived",
  "properties": {
    "feedback_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "record_id": {"type": "string"},
    "ai_label": {"type": "string"},
    "user_label": {"type": "string"},
    "certainty": {"type": "number"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["feedback_id", "tenant_id", "record_id", "user_label", "created_at"],
  "additionalProperties": false
}`
