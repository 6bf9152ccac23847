package filter

import apperrors "github.com/ianzepp/monk-api/pkg/errors"

func errInvalidTable(name string) *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "InvalidTable", "invalid table identifier: "+name)
}

func errInvalidColumn(name string) *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "InvalidColumn", "invalid column identifier: "+name)
}

func errUnsupportedOperator(op string) *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "UnsupportedOperator", "unsupported operator: "+op)
}

func errInvalidOperatorData(reason string) *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "InvalidOperatorData", reason)
}

func errInvalidLimit() *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "InvalidLimit", "limit must be non-negative")
}

func errInvalidOffset() *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "InvalidOffset", "offset must be non-negative")
}

func errInvalidWhereClause(reason string) *apperrors.Error {
	return apperrors.New(apperrors.KindFilter, "InvalidWhereClause", reason)
}
