package elink

import "fmt"

// NewSessionForPrinter selects a sessionStrategy for info.PrinterType,
// constructs a Session around it, and initializes it. An unrecognized
// type — including the zero value and PrinterTypeUnknown — is logged and
// rejected rather than defaulted to some variant, matching
// PrinterFactory::createPrinter's UNKNOWN/default case.
func NewSessionForPrinter(info PrinterInfo) (*Session, error) {
	strategy := strategyFor(info.PrinterType)
	if strategy == nil {
		printerLog(info.PrinterID).Errorf("unsupported printer type %q", info.PrinterType)
		return nil, fmt.Errorf("elink: unsupported printer type %q", info.PrinterType)
	}

	session := newSession(info, strategy)
	if err := session.Initialize(); err != nil {
		printerLog(info.PrinterID).WithError(err).Error("failed to initialize session")
		return nil, err
	}

	printerLog(info.PrinterID).WithField("printer_type", info.PrinterType).Debug("created session")
	return session, nil
}

func strategyFor(printerType PrinterType) sessionStrategy {
	switch printerType {
	case PrinterTypeElegooFdmCC2:
		return cc2Strategy{}
	case PrinterTypeElegooFdmCC:
		return ccStrategy{}
	case PrinterTypeElegooFdmKlipper, PrinterTypeGenericFdmKlipper:
		return moonrakerStrategy{}
	default:
		return nil
	}
}
