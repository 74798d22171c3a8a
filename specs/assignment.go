package specs

// Assign maps each record to the unique bucket whose interval contains its ARR.
//
// Returns one BucketedRecordSpec per input record in the same order. Records whose
// ARR falls outside every bucket are returned with the "unmatched" diagnostic rather
// than dropped. A null or non-numeric ARR is a contract violation and fails the call.
//
// See internal.Assign for the reference implementation.
type Assign func(records []RecordSpec, config BucketConfigSpec) ([]BucketedRecordSpec, error)
