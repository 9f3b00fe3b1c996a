package gemini

import "encoding/json"

const extractPrompt = `List every kind of toy visible in the photo.
For each category give the number of items and a bounding box per item as
[ymin, xmin, ymax, xmax] normalized to 0..1000.`

const analyzePrompt = `The child is %d years old. The toy inventory is:
%s

Score the developmental coverage of these toys from 0 to 100 for each skill:
fine_motor, gross_motor, cognitive, creative, social_emotional, language.
Write a one-paragraph summary.
Then give exactly three roadmap recommendations, one per timeframe
("now", "3_months", "6_months"), each with a distinct priority 1..3, a short
title, the recommendation itself and the skill it targets.`

const questPrompt = `The child is %d years old. Available toys: %s

Invent one short creative play activity that uses between 2 and 4 of the
available toys. List the toys used in "items".`

const safetyPrompt = `The child is %d years old. Review each roadmap recommendation below for age
appropriateness and physical safety:
%s

Return one item per recommendation, in the same order, keeping its timeframe.
Use decision "approved" and repeat the recommendation when it is safe.
Otherwise use decision "substituted", give a safe alternative as
final_recommendation and explain why in safety_rationale.`

var inventorySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "category": {"type": "string"},
          "count": {"type": "integer"},
          "boxes": {
            "type": "array",
            "items": {"type": "array", "items": {"type": "integer"}}
          }
        },
        "required": ["category", "count"]
      }
    }
  },
  "required": ["items"]
}`)

var analysisSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "skill_scores": {
      "type": "object",
      "properties": {
        "fine_motor": {"type": "integer"},
        "gross_motor": {"type": "integer"},
        "cognitive": {"type": "integer"},
        "creative": {"type": "integer"},
        "social_emotional": {"type": "integer"},
        "language": {"type": "integer"}
      },
      "required": ["fine_motor", "gross_motor", "cognitive", "creative", "social_emotional", "language"]
    },
    "roadmap": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timeframe": {"type": "string", "enum": ["now", "3_months", "6_months"]},
          "priority": {"type": "integer"},
          "title": {"type": "string"},
          "recommendation": {"type": "string"},
          "skill": {"type": "string"}
        },
        "required": ["timeframe", "priority", "title", "recommendation"]
      }
    }
  },
  "required": ["summary", "skill_scores", "roadmap"]
}`)

var questSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"},
    "items": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["title", "description", "items"]
}`)

var safetySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timeframe": {"type": "string", "enum": ["now", "3_months", "6_months"]},
          "decision": {"type": "string", "enum": ["approved", "substituted"]},
          "final_recommendation": {"type": "string"},
          "safety_rationale": {"type": "string"}
        },
        "required": ["timeframe", "decision", "final_recommendation"]
      }
    }
  },
  "required": ["items"]
}`)
