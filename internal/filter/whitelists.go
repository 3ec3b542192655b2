package filter

// TraceFields is the whitelist for the advanced trace search endpoint.
var TraceFields = Whitelist{
	"trace_id":     {Column: "trace_id", Kind: KindString},
	"service_name": {Column: "service_name", Kind: KindString},
	"status":       {Column: "status", Kind: KindString},
	"start_time":   {Column: "start_time", Kind: KindDateTime},
	"end_time":     {Column: "end_time", Kind: KindDateTime},
	"duration_us":  {Column: "duration_us", Kind: KindNumeric},
	"span_count":   {Column: "span_count", Kind: KindNumeric},
	"root_span_name": {
		Column:    "root_span_name",
		Kind:      KindString,
		TSVColumn: "root_span_name_tsv",
	},
}

// SpanFields is the whitelist for span-level queries.
var SpanFields = Whitelist{
	"span_id":        {Column: "span_id", Kind: KindString},
	"parent_span_id": {Column: "parent_span_id", Kind: KindString},
	"name":           {Column: "name", Kind: KindString, TSVColumn: "name_tsv"},
	"kind":           {Column: "kind", Kind: KindString},
	"service_name":   {Column: "service_name", Kind: KindString},
	"status":         {Column: "status", Kind: KindString},
	"start_time":     {Column: "start_time", Kind: KindDateTime},
	"end_time":       {Column: "end_time", Kind: KindDateTime},
	"duration_us":    {Column: "duration_us", Kind: KindNumeric},
}

// LogFields is the whitelist for log queries, including full-text search
// against the precomputed body_tsv index column.
var LogFields = Whitelist{
	"timestamp":       {Column: "timestamp", Kind: KindDateTime},
	"severity_number": {Column: "severity_number", Kind: KindNumeric},
	"severity_text":   {Column: "severity_text", Kind: KindString},
	"service_name":    {Column: "service_name", Kind: KindString},
	"trace_id":        {Column: "trace_id", Kind: KindString},
	"span_id":         {Column: "span_id", Kind: KindString},
	"body":            {Column: "body", Kind: KindString, TSVColumn: "body_tsv"},
}

// MetricFields is the whitelist for metric-definition queries.
var MetricFields = Whitelist{
	"name":         {Column: "name", Kind: KindString},
	"metric_type":  {Column: "metric_type", Kind: KindString},
	"service_name": {Column: "service_name", Kind: KindString},
	"unit":         {Column: "unit", Kind: KindString},
}

// MetricDataPointFields is the whitelist for data-point range queries.
var MetricDataPointFields = Whitelist{
	"timestamp": {Column: "timestamp", Kind: KindDateTime},
	"value":     {Column: "value", Kind: KindNumeric},
	"count":     {Column: "count", Kind: KindNumeric},
	"sum":       {Column: "sum", Kind: KindNumeric},
}
