package config

import (
	"net"

	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/entity"
)

// DeclareTLSProfile builds a TLS profile from its management entity and
// resolves its password. Nothing is returned on error.
func DeclareTLSProfile(ent entity.Entity, log *zap.Logger) (*TLSProfile, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		p   TLSProfile
		err error
	)
	if p.Name, err = ent.OptString("name", ""); err != nil {
		return nil, err
	}
	if p.CertificateFile, err = ent.OptString("certFile", ""); err != nil {
		return nil, err
	}
	if p.PrivateKeyFile, err = ent.OptString("privateKeyFile", ""); err != nil {
		return nil, err
	}
	if p.Password, err = ent.OptString("password", ""); err != nil {
		return nil, err
	}

	if p.Password != "" {
		log.Warn("Attribute password of entity sslProfile has been deprecated. Use passwordFile instead.",
			zap.String("profile", p.Name))
	} else {
		passwordFile, err := ent.OptString("passwordFile", "")
		if err != nil {
			return nil, err
		}
		if passwordFile != "" {
			p.Password = readPasswordFile(passwordFile)
		}
	}

	if p.Ciphers, err = ent.OptString("ciphers", ""); err != nil {
		return nil, err
	}
	if p.Protocols, err = ent.OptString("protocols", ""); err != nil {
		return nil, err
	}
	if p.TrustedCertificateDB, err = ent.OptString("caCertFile", ""); err != nil {
		return nil, err
	}
	if p.TrustedCertificates, err = ent.OptString("trustedCertsFile", ""); err != nil {
		return nil, err
	}
	if p.UIDFormat, err = ent.OptString("uidFormat", ""); err != nil {
		return nil, err
	}
	if p.UIDNameMappingFile, err = ent.OptString("uidNameMappingFile", ""); err != nil {
		return nil, err
	}

	if p.Password != "" {
		if p.Password, err = ResolvePassword(p.Password); err != nil {
			return nil, err
		}
	}

	log.Info("Created SSL Profile", zap.String("name", p.Name))
	return &p, nil
}

// DeclareSASLPlugin builds an authentication service plugin profile from its
// management entity.
func DeclareSASLPlugin(ent entity.Entity, log *zap.Logger) (*SASLPluginProfile, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		p   SASLPluginProfile
		err error
	)
	if p.Name, err = ent.OptString("name", ""); err != nil {
		return nil, err
	}

	host, err := ent.OptString("host", "")
	if err != nil {
		return nil, err
	}
	port, err := ent.OptString("port", "")
	if err != nil {
		return nil, err
	}
	if host != "" && port != "" {
		p.AuthService = net.JoinHostPort(host, port)
	} else {
		if p.AuthService, err = ent.OptString("authService", ""); err != nil {
			return nil, err
		}
		log.Warn("Attribute authService of entity authServicePlugin has been deprecated. Use host and port instead.",
			zap.String("plugin", p.Name))
	}

	if p.InitHostname, err = ent.OptString("realm", ""); err != nil {
		return nil, err
	}
	if p.SSLProfile, err = ent.OptString("sslProfile", ""); err != nil {
		return nil, err
	}

	log.Info("Created SASL plugin config", zap.String("name", p.Name))
	return &p, nil
}
